/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package version

import (
	"runtime"
	"runtime/debug"
	"strconv"
	"time"
)

const (
	DevelopmentVersion = "dev"
)

// Set with -ldflags "-X" at build time.
var (
	ProductVersion = DevelopmentVersion
	CommitHash     = ""
	BuildTimestamp = ""
)

type VersionOutput struct {
	Version    string     `json:"version"`
	CommitHash string     `json:"commitHash,omitempty"`
	BuildTime  *time.Time `json:"buildTimestamp,omitempty"`
	GoVersion  string     `json:"goVersion"`
}

func Version() VersionOutput {
	retval := VersionOutput{
		Version:    ProductVersion,
		CommitHash: CommitHash,
		BuildTime:  parseBuildTimestamp(BuildTimestamp),
		GoVersion:  runtime.Version(),
	}
	if retval.Version == "" {
		retval.Version = DevelopmentVersion
	}

	// Binaries built with plain "go build" still carry the VCS revision.
	if retval.CommitHash == "" {
		if info, found := debug.ReadBuildInfo(); found {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					retval.CommitHash = setting.Value
				}
			}
		}
	}

	return retval
}

// The timestamp is either Unix seconds or RFC 3339.
func parseBuildTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.Unix(seconds, 0).UTC()
		return &t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	return nil
}
