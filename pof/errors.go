// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pof

import "errors"

// Sentinel errors for the five POF error conditions from the codec
// contract. Wrap these with fmt.Errorf("...: %w", ErrX) so callers can
// branch with errors.Is.
var (
	ErrIO          = errors.New("pof: truncated or malformed stream")
	ErrUnknownType = errors.New("pof: unregistered type id")
	ErrVersion     = errors.New("pof: negative data version")
	ErrReference   = errors.New("pof: undefined or cyclic forward reference")
	ErrOverflow    = errors.New("pof: decimal exceeds local range")
)
