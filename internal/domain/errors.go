// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrDeployTokenMissing = errors.New("deploy token is not configured")
var ErrArtifactMissing = errors.New("step succeeded but expected artifact is missing")
var ErrNoDeployment = errors.New("no deployment recorded yet")
var ErrTranscriptTooShort = errors.New("transcript too short")
