// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"fmt"
	"strconv"
	"strings"
)

// Well-known PAX extension keys.
const (
	paxPath     = "path"
	paxLinkpath = "linkpath"
	paxUname    = "uname"
	paxGname    = "gname"
	paxUID      = "uid"
	paxGID      = "gid"
	paxMtime    = "mtime"

	// paxSchilyXattr prefixes keys that carry extended file attributes.
	paxSchilyXattr = "SCHILY.xattr."
)

// parsePAX decodes a PAX extension blob into its key/value records. Each
// record has the form "%d %s=%s\n" where the leading decimal is the total
// record length including itself.
func parsePAX(blob []byte) (map[string]string, error) {
	headers := make(map[string]string)
	rest := string(blob)
	for len(rest) > 0 {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: malformed pax record length", ErrInvalidHeader)
		}
		n, err := strconv.Atoi(rest[:sp])
		if err != nil || n < sp+1 || n > len(rest) {
			return nil, fmt.Errorf("%w: malformed pax record length", ErrInvalidHeader)
		}
		record := rest[sp+1 : n]
		rest = rest[n:]

		if len(record) == 0 || record[len(record)-1] != '\n' {
			return nil, fmt.Errorf("%w: pax record not newline terminated", ErrInvalidHeader)
		}
		record = record[:len(record)-1]

		eq := strings.IndexByte(record, '=')
		if eq < 0 {
			return nil, fmt.Errorf("%w: pax record without separator", ErrInvalidHeader)
		}
		headers[record[:eq]] = record[eq+1:]
	}
	return headers, nil
}

// paxTime parses a PAX timestamp of the form "seconds[.subseconds]" into
// whole seconds; sub-second precision is dropped.
func paxTime(v string) (int64, error) {
	if dot := strings.IndexByte(v, '.'); dot >= 0 {
		v = v[:dot]
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed pax timestamp", ErrInvalidHeader)
	}
	return sec, nil
}
