package aggregator

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/NordCoder/Herald/internal/domain/aggregation"
	"github.com/NordCoder/Herald/internal/domain/event"
)

// bodyListLimit caps how many object keys are listed in a batch body.
const bodyListLimit = 10

type Content struct {
	Title string
	Body  *string
	Path  *string
}

// BuildContent renders the notification text for a batch. first decides the
// event type and target; batch is every event being flushed.
func BuildContent(first *event.Event, batch []*event.Event) Content {
	n := len(batch)
	if n == 0 {
		n = 1
	}
	c := Content{Title: Title(first, n), Path: Path(first, n)}
	if body := Body(first, batch); body != "" {
		c.Body = &body
	}
	return c
}

func Title(first *event.Event, n int) string {
	if first.EmitterIdentifier != aggregation.EmitterCore {
		return countable(n, "new event", "new events")
	}
	switch first.EventIdentifier {
	case aggregation.EventObjectAdded:
		return countable(n, "object added", "objects added")
	case aggregation.EventObjectRemoved:
		return countable(n, "object removed", "objects removed")
	case aggregation.EventFolderShared:
		if name := first.StringField("folderName"); name != "" {
			return fmt.Sprintf("Folder %q was shared with you", name)
		}
		return "A folder was shared with you"
	case aggregation.EventCommentAdded:
		return countable(n, "new comment", "new comments")
	default:
		return countable(n, "new event", "new events")
	}
}

// Body lists the distinct object keys of the batch, or the comment text of a
// single comment.
func Body(first *event.Event, batch []*event.Event) string {
	if first.EventIdentifier == aggregation.EventCommentAdded && len(batch) == 1 {
		return first.StringField("text")
	}

	seen := make(map[string]struct{}, len(batch))
	keys := make([]string, 0, len(batch))
	for _, e := range batch {
		if e.TargetLocationObjectKey == nil {
			continue
		}
		k := *e.TargetLocationObjectKey
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}

	shown := keys
	if len(shown) > bodyListLimit {
		shown = keys[:bodyListLimit]
	}
	body := strings.Join(shown, "\n")
	if extra := len(keys) - len(shown); extra > 0 {
		body += fmt.Sprintf("\nand %d more", extra)
	}
	return body
}

// Path is the in-app location of the notification: the single object when the
// batch has one, otherwise its folder.
func Path(first *event.Event, n int) *string {
	if first.TargetLocationFolderID == nil {
		return nil
	}
	p := "/folders/" + first.TargetLocationFolderID.String()
	if n == 1 && first.TargetLocationObjectKey != nil && first.EventIdentifier != aggregation.EventObjectRemoved {
		p += "/objects/" + url.PathEscape(*first.TargetLocationObjectKey)
	}
	return &p
}

func countable(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
