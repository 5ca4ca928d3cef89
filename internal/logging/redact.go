// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package logging

// RedactToken masks a bearer token or client secret for log output, showing
// only enough of each end to correlate log lines with a specific token.
//
//	logging.Info().Str("token", logging.RedactToken(tok)).Msg("refreshed")
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
