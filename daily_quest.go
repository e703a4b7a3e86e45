package stored

import (
	"errors"
	"fmt"
)

// QuestSlots is the number of quest names a DailyQuestRecord holds.
const QuestSlots = 6

var questSlots = [QuestSlots]string{"quest1", "quest2", "quest3", "quest4", "quest5", "quest6"}

var dailyQuestSchema = RegisterSchema(NewSchema("daily",
	StringField(questSlots[0], ""),
	StringField(questSlots[1], ""),
	StringField(questSlots[2], ""),
	StringField(questSlots[3], ""),
	StringField(questSlots[4], ""),
	StringField(questSlots[5], ""),
))

// DailyQuestRecord persists up to six daily quest names in slot order.
// Callers must check IsExpired separately; LoadQuests does not.
type DailyQuestRecord struct {
	*Record
	expiry   ExpiryPolicy
	resolver QuestResolver
}

func NewDailyQuest(key string, opts ...Option) *DailyQuestRecord {
	rec := NewRecord(dailyQuestSchema, key, opts...)
	return &DailyQuestRecord{
		Record:   rec,
		expiry:   newExpiryPolicy(rec.cfg),
		resolver: rec.cfg.quests,
	}
}

func (d *DailyQuestRecord) IsExpired() (bool, error) {
	return d.expiry.Expired(d.Record)
}

// QuestNames returns the six raw slot values, empty slots included.
func (d *DailyQuestRecord) QuestNames() ([]string, error) {
	names := make([]string, 0, QuestSlots)
	for _, slot := range questSlots {
		name, err := d.GetString(slot)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// LoadQuests resolves the non-empty slots in order. Names the resolver does
// not know are dropped.
func (d *DailyQuestRecord) LoadQuests() ([]Quest, error) {
	if d.resolver == nil {
		return nil, fmt.Errorf("stored: %s: quest resolver not configured", d.key)
	}
	names, err := d.QuestNames()
	if err != nil {
		return nil, err
	}
	quests := make([]Quest, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		quest, err := d.resolver.Resolve(name)
		if errors.Is(err, ErrQuestNotFound) {
			d.logger().Info(fmt.Sprintf("%s: unknown quest %q dropped", d.name, name))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stored: %s: resolve quest %q: %w", d.key, name, err)
		}
		quests = append(quests, quest)
	}
	return quests, nil
}

// WriteQuests stores quests, each a Quest or a raw name, into the six slots
// in one batch. Slots past the input are cleared; items past the sixth are
// not written.
func (d *DailyQuestRecord) WriteQuests(quests []any) error {
	names := make([]string, 0, len(quests))
	for i, item := range quests {
		switch typed := item.(type) {
		case Quest:
			names = append(names, typed.QuestName())
		case string:
			names = append(names, typed)
		default:
			return fmt.Errorf("stored: %s: quest %d has unsupported type %T", d.key, i, item)
		}
	}
	return d.writeNames(names)
}

// WriteQuestNames is WriteQuests for raw names.
func (d *DailyQuestRecord) WriteQuestNames(names ...string) error {
	return d.writeNames(names)
}

func (d *DailyQuestRecord) writeNames(names []string) error {
	return d.batch("write quests", func() error {
		for i, slot := range questSlots {
			name := ""
			if i < len(names) {
				name = names[i]
			}
			if err := d.Set(slot, String(name)); err != nil {
				return err
			}
		}
		return nil
	})
}
