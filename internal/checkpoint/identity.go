package checkpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidUID is returned by ParseUID for strings that are not node
// identities.
var ErrInvalidUID = errors.New("invalid uid")

// UID returns the stable identity of a checkpoint: "{storageId}#{index}".
// Node selection code splits this on '#', so the format must not change.
func UID(storageID, index int) string {
	return strconv.Itoa(storageID) + "#" + strconv.Itoa(index)
}

// ReportUID returns the identity of a report node.
func ReportUID(storageID int) string {
	return strconv.Itoa(storageID)
}

// ParseUID splits an identity into its storage id and checkpoint index.
// Report identities have no '#' and yield index -1.
func ParseUID(uid string) (storageID, index int, err error) {
	storagePart, indexPart, hasIndex := strings.Cut(uid, "#")
	storageID, err = strconv.Atoi(storagePart)
	if err != nil {
		return 0, 0, fmt.Errorf("%w %q: storage id: %v", ErrInvalidUID, uid, err)
	}
	if !hasIndex {
		return storageID, -1, nil
	}
	index, err = strconv.Atoi(indexPart)
	if err != nil || index < 0 {
		return 0, 0, fmt.Errorf("%w %q: index %q", ErrInvalidUID, uid, indexPart)
	}
	return storageID, index, nil
}

// UID returns the checkpoint's identity. Checkpoints outside a report use
// storage id 0.
func (c *Checkpoint) UID() string {
	storageID := 0
	if c.report != nil {
		storageID = c.report.StorageID
	}
	return UID(storageID, c.Index)
}

// UID returns the report's node identity.
func (r *Report) UID() string {
	return ReportUID(r.StorageID)
}
