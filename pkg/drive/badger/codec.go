package badger

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

func marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, internalErr(err)
	}
	return raw, nil
}

func unmarshal(raw []byte, dst interface{}) error {
	return json.Unmarshal(raw, dst)
}

func newID() string { return uuid.NewString() }

// getVersions loads a file's version list, ascending. Missing keys mean
// an empty list.
func getVersions(txn *badger.Txn, fileID string) ([]drive.Version, error) {
	var versions []drive.Version
	if err := getJSON(txn, versionsKey(fileID), &versions); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, internalErr(err)
	}
	return versions, nil
}

// nextVersionNumber bumps and returns the file's monotonic counter.
func nextVersionNumber(txn *badger.Txn, fileID string) (int, error) {
	counter := 0
	if err := getJSON(txn, counterKey(fileID), &counter); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return 0, internalErr(err)
	}
	counter++
	if err := setJSON(txn, counterKey(fileID), counter); err != nil {
		return 0, err
	}
	return counter, nil
}

// sortEntries orders listings folders-first, then by name.
func sortEntries(entries []drive.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == drive.EntryTypeFolder
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
