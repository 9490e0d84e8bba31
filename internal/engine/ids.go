package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/swarm/pkg/models"
)

// idNamespace seeds the content hash of task ids.
var idNamespace = uuid.MustParse("6f1c2a4e-8b0d-5e3f-9a7c-2d4b6e8f0a1c")

var typePrefix = map[models.TaskType]string{
	models.TaskTypeResearch:  "RES",
	models.TaskTypePlanning:  "PLN",
	models.TaskTypeExecution: "EXEC",
	models.TaskTypeReview:    "REV",
}

// taskID builds "<PREFIX>-<seq>-<hash>". The same note, title and sequence
// always yield the same id.
func taskID(t models.TaskType, seq int, noteID, title string) string {
	prefix, ok := typePrefix[t]
	if !ok {
		prefix = "TASK"
	}
	sum := uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s|%s|%d", noteID, title, seq)))
	hash := strings.ReplaceAll(sum.String(), "-", "")[:8]
	return fmt.Sprintf("%s-%04d-%s", prefix, seq, hash)
}

// seqOf extracts the sequence number from a task id, or 0.
func seqOf(id string) int {
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return 0
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return n
}

// ShortID returns the trailing segment of a task id.
func ShortID(id string) string {
	if i := strings.LastIndex(id, "-"); i >= 0 {
		return id[i+1:]
	}
	return id
}
