package cache

import "fmt"

// Key layout:
// - roomKey(docID):            online members (ZSet<userId, expireAtUnix>)
// - namesKey(docID):           userId -> username (Hash)
// - caretKey(docID, userID):   last caret after a mutation (JSON string, TTL)
// - sessionKey(docID, userID): IME composition session (JSON string, TTL)
//
// The {docID:...} hash tag keeps one document's keys in one cluster slot.

const (
	keyRoomFmt    = "presence:room:{docID:%s}"
	keyNamesFmt   = "presence:room:names:{docID:%s}"
	keyCaretFmt   = "presence:caret:{docID:%s}:%d"
	keySessionFmt = "composer:ime:{docID:%s}:%d"
)

func roomKey(docID string) string                   { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string                  { return fmt.Sprintf(keyNamesFmt, docID) }
func caretKey(docID string, userID uint64) string   { return fmt.Sprintf(keyCaretFmt, docID, userID) }
func sessionKey(docID string, userID uint64) string { return fmt.Sprintf(keySessionFmt, docID, userID) }
