package devtools

// Method identifies a front-end protocol method the bridge knows about.
type Method int

const (
	MethodUnknown Method = iota

	RuntimeEvaluate
	RuntimeGetProperties
	RuntimeReleaseObjectGroup
	RuntimeCallFunctionOn

	DebuggerEnable
	DebuggerDisable
	DebuggerCausesRecompilation
	DebuggerSupportsNativeBreakpoints
	DebuggerCanSetScriptSource
	DebuggerSetPauseOnExceptions
	DebuggerSetBreakpointsActive
	DebuggerSetBreakpointByURL
	DebuggerSetBreakpoint
	DebuggerRemoveBreakpoint
	DebuggerStepInto
	DebuggerStepOver
	DebuggerStepOut
	DebuggerPause
	DebuggerResume
	DebuggerEvaluateOnCallFrame
	DebuggerGetScriptSource
	DebuggerSetScriptSource

	PageCanOverrideDeviceMetrics

	ConsoleEnable

	ProfilerEnable
	ProfilerDisable
	ProfilerCausesRecompilation
	ProfilerIsSampling
	ProfilerHasHeapProfiler
	ProfilerStart
	ProfilerStop
	ProfilerGetProfileHeaders
	ProfilerGetProfile
	ProfilerRemoveProfile
	ProfilerClearProfiles
	ProfilerTakeHeapSnapshot
	ProfilerGetObjectByHeapObjectID

	methodCount
)

var methodNames = [methodCount]string{
	MethodUnknown: "",

	RuntimeEvaluate:           "Runtime.evaluate",
	RuntimeGetProperties:      "Runtime.getProperties",
	RuntimeReleaseObjectGroup: "Runtime.releaseObjectGroup",
	RuntimeCallFunctionOn:     "Runtime.callFunctionOn",

	DebuggerEnable:                    "Debugger.enable",
	DebuggerDisable:                   "Debugger.disable",
	DebuggerCausesRecompilation:       "Debugger.causesRecompilation",
	DebuggerSupportsNativeBreakpoints: "Debugger.supportsNativeBreakpoints",
	DebuggerCanSetScriptSource:        "Debugger.canSetScriptSource",
	DebuggerSetPauseOnExceptions:      "Debugger.setPauseOnExceptions",
	DebuggerSetBreakpointsActive:      "Debugger.setBreakpointsActive",
	DebuggerSetBreakpointByURL:        "Debugger.setBreakpointByUrl",
	DebuggerSetBreakpoint:             "Debugger.setBreakpoint",
	DebuggerRemoveBreakpoint:          "Debugger.removeBreakpoint",
	DebuggerStepInto:                  "Debugger.stepInto",
	DebuggerStepOver:                  "Debugger.stepOver",
	DebuggerStepOut:                   "Debugger.stepOut",
	DebuggerPause:                     "Debugger.pause",
	DebuggerResume:                    "Debugger.resume",
	DebuggerEvaluateOnCallFrame:       "Debugger.evaluateOnCallFrame",
	DebuggerGetScriptSource:           "Debugger.getScriptSource",
	DebuggerSetScriptSource:           "Debugger.setScriptSource",

	PageCanOverrideDeviceMetrics: "Page.canOverrideDeviceMetrics",

	ConsoleEnable: "Console.enable",

	ProfilerEnable:                  "Profiler.enable",
	ProfilerDisable:                 "Profiler.disable",
	ProfilerCausesRecompilation:     "Profiler.causesRecompilation",
	ProfilerIsSampling:              "Profiler.isSampling",
	ProfilerHasHeapProfiler:         "Profiler.hasHeapProfiler",
	ProfilerStart:                   "Profiler.start",
	ProfilerStop:                    "Profiler.stop",
	ProfilerGetProfileHeaders:       "Profiler.getProfileHeaders",
	ProfilerGetProfile:              "Profiler.getProfile",
	ProfilerRemoveProfile:           "Profiler.removeProfile",
	ProfilerClearProfiles:           "Profiler.clearProfiles",
	ProfilerTakeHeapSnapshot:        "Profiler.takeHeapSnapshot",
	ProfilerGetObjectByHeapObjectID: "Profiler.getObjectByHeapObjectId",
}

var methodsByName = func() map[string]Method {
	m := make(map[string]Method, methodCount)
	for i := MethodUnknown + 1; i < methodCount; i++ {
		m[methodNames[i]] = i
	}
	return m
}()

// ParseMethod maps a wire method name to its identifier.
// Names the bridge does not handle yield MethodUnknown and false.
func ParseMethod(name string) (Method, bool) {
	m, found := methodsByName[name]
	if !found {
		return MethodUnknown, false
	}
	return m, true
}

func (m Method) String() string {
	if m <= MethodUnknown || m >= methodCount {
		return "unknown"
	}
	return methodNames[m]
}

// Methods returns every known method identifier.
func Methods() []Method {
	retval := make([]Method, 0, methodCount-1)
	for i := MethodUnknown + 1; i < methodCount; i++ {
		retval = append(retval, i)
	}
	return retval
}

// Event method names sent to the front end.
const (
	EventConsoleMessageAdded          = "Console.messageAdded"
	EventConsoleMessagesCleared       = "Console.messagesCleared"
	EventDebuggerPaused               = "Debugger.paused"
	EventDebuggerResumed              = "Debugger.resumed"
	EventDebuggerScriptParsed         = "Debugger.scriptParsed"
	EventDebuggerGlobalObjectCleared  = "Debugger.globalObjectCleared"
	EventProfilerAddProfileHeader     = "Profiler.addProfileHeader"
	EventProfilerResetProfiles        = "Profiler.resetProfiles"
	EventProfilerSetRecordingProfile  = "Profiler.setRecordingProfile"
	EventProfilerHeapSnapshotProgress = "Profiler.reportHeapSnapshotProgress"
	EventProfilerAddHeapSnapshotChunk = "Profiler.addHeapSnapshotChunk"
	EventProfilerFinishHeapSnapshot   = "Profiler.finishHeapSnapshot"
)
