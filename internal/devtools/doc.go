// Package devtools defines the message shapes of the inspector front-end protocol:
// requests and responses exchanged with a front end over a WebSocket, the events pushed
// to it, and the value types (remote objects, call frames, scopes, profile headers)
// carried inside them.
//
// It also defines ObjectRef, the composite identifier the bridge hands out instead of
// engine handles so that the front end can ask for an object's properties later.
package devtools
