/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesFrontEndFiles(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	webRoot := t.TempDir()
	const page = "<html><body>inspector</body></html>"
	require.NoError(t, os.WriteFile(filepath.Join(webRoot, "inspector.html"), []byte(page), 0o600))

	h := newHarness(t, ctx, webRoot)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.server.URL+"/inspector.html", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "-1", resp.Header.Get("Expires"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, page, string(body))
}

func TestServerMissingFile(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.server.URL+"/nope.js", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// A plain request for the WebSocket path is not an upgrade and falls through to the files.
func TestServerWebSocketPathWithoutUpgrade(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.server.URL+testWebSocketPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, h.registry.Sessions())
}

func TestSessionsAreUnregisteredOnClose(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)
	h.connectFrontEnd(t, ctx)
	require.Len(t, h.registry.Sessions(), 2)

	require.NoError(t, fe.conn.Close())
	require.Eventually(t, func() bool {
		return len(h.registry.Sessions()) == 1
	}, testTimeout, testPollInterval)
}
