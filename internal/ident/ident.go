// Package ident generates session-unique identifiers.
//
// The format is a time+random composite ("<epoch-ms>-<7 base36 chars>").
// It is not cryptographically unique, only practically unique within a
// session, and must stay in this shape to interoperate with ids already
// present in stored snapshots.
package ident

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	alphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffixLen = 7
)

// New returns a fresh identifier.
func New() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	b.WriteByte('-')
	for i := 0; i < suffixLen; i++ {
		b.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return b.String()
}
