package badger

import "fmt"

// Key schema. Namespaced prefixes keep the data types apart and make
// prefix scans cheap:
//
//	u:<userID>        User JSON
//	ue:<email>        user ID owning the (lowercased) email
//	e:<entryID>       entryRecord JSON (entry + permission grants)
//	v:<fileID>        []Version JSON, ascending by creation
//	vn:<fileID>       monotonic version number counter
//	c:<versionID>     raw version content
//	h:<seq>           HistoryEvent JSON, seq is a zero-padded counter
//	hseq              next history sequence number
const (
	prefixUser    = "u:"
	prefixEmail   = "ue:"
	prefixEntry   = "e:"
	prefixVersion = "v:"
	prefixCounter = "vn:"
	prefixContent = "c:"
	prefixHistory = "h:"
	keyHistorySeq = "hseq"
)

func userKey(id string) []byte       { return []byte(prefixUser + id) }
func emailKey(email string) []byte   { return []byte(prefixEmail + email) }
func entryKey(id string) []byte      { return []byte(prefixEntry + id) }
func versionsKey(id string) []byte   { return []byte(prefixVersion + id) }
func counterKey(id string) []byte    { return []byte(prefixCounter + id) }
func contentKey(id string) []byte    { return []byte(prefixContent + id) }
func historyKey(seq uint64) []byte   { return []byte(fmt.Sprintf("%s%020d", prefixHistory, seq)) }
