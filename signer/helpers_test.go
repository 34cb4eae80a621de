// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import "encoding/base64"

func toBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
