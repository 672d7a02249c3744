package aggregation

const EmitterCore = "core"

const (
	EventObjectAdded   = "object_added"
	EventObjectRemoved = "object_removed"
	EventFolderShared  = "folder_shared"
	EventCommentAdded  = "comment_added"
)

// EmitterPolicy resolves policies for emitters other than core. Returning
// false disables notifications for the event type.
type EmitterPolicy func(emitterIdentifier, eventIdentifier string) (Config, bool)

// NoExternalEmitters keeps every non-core emitter silent.
func NoExternalEmitters(string, string) (Config, bool) { return Config{}, false }

type key struct{ emitter, event string }

// Table is an immutable policy table. Build it with NewTable; it is safe for
// concurrent use.
type Table struct {
	entries  map[key]Config
	external EmitterPolicy
}

var _ Lookup = (*Table)(nil)

func NewTable(core map[string]Config, external EmitterPolicy) *Table {
	entries := make(map[key]Config, len(core))
	for ev, c := range core {
		if c.MaxIntervalSeconds != nil {
			v := *c.MaxIntervalSeconds
			c.MaxIntervalSeconds = &v
		}
		entries[key{EmitterCore, ev}] = c
	}
	if external == nil {
		external = NoExternalEmitters
	}
	return &Table{entries: entries, external: external}
}

func (t *Table) Lookup(emitterIdentifier, eventIdentifier string) (Config, bool) {
	if emitterIdentifier != EmitterCore {
		return t.external(emitterIdentifier, eventIdentifier)
	}
	c, ok := t.entries[key{emitterIdentifier, eventIdentifier}]
	if !ok {
		return Config{}, false
	}
	if c.MaxIntervalSeconds != nil {
		v := *c.MaxIntervalSeconds
		c.MaxIntervalSeconds = &v
	}
	return c, true
}

func seconds(n int) *int { return &n }

// DefaultCore returns the compiled-in policies of the core emitter.
func DefaultCore() map[string]Config {
	return map[string]Config{
		EventObjectAdded:   {NotificationsEnabled: true, DebounceSeconds: 5, MaxIntervalSeconds: seconds(60)},
		EventObjectRemoved: {NotificationsEnabled: true, DebounceSeconds: 5, MaxIntervalSeconds: seconds(60)},
		EventFolderShared:  {NotificationsEnabled: true, DebounceSeconds: 0},
		EventCommentAdded:  {NotificationsEnabled: true, DebounceSeconds: 10, MaxIntervalSeconds: seconds(120)},
	}
}
