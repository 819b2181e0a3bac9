package store

import (
	"strings"

	"github.com/google/uuid"
)

// ID prefixes, one per entity kind.
const (
	PrefixProfile            = "USER-DB"
	PrefixCredential         = "API-KEY"
	PrefixChatTab            = "CHAT-TAB"
	PrefixChatMessage        = "CHAT-MESSAGE"
	PrefixQuery              = "QUERY"
	PrefixDatabaseAnnotation = "DB-ANNOTATION"
	PrefixTableAnnotation    = "TBL-ANNOTATION"
	PrefixColumnAnnotation   = "COL-ANNOTATION"
	PrefixRelationship       = "REL-ANNOTATION"
	PrefixConstraint         = "CONST-ANNOTATION"
	PrefixConstraintColumn   = "CONST-COLUMN"
	PrefixIndex              = "IDX-ANNOTATION"
	PrefixIndexColumn        = "IDX-COLUMN"
)

// NewID returns "<PREFIX>-<32 upper-case hex digits>". Time-ordered v7
// UUIDs keep ids roughly in insertion order.
func NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return strings.ToUpper(prefix) + "-" + hex
}
