package stored

import "fmt"

// DailyActivityTotal is the fixed total of the daily activity counter.
const DailyActivityTotal = 500

var (
	intSchema = RegisterSchema(NewSchema("int",
		IntField("value", 0),
	))
	counterSchema = RegisterSchema(NewSchema("counter",
		IntField("current", 0),
		IntField("total", 0),
	))
	dailyActivitySchema = RegisterSchema(counterSchema.Extend("daily_activity"))
	dungeonDoubleSchema = RegisterSchema(NewSchema("dungeon_double",
		IntField("calyx", 0),
		IntField("relic", 0),
	))
)

// IntRecord stores a single integer.
type IntRecord struct {
	*Record
}

func NewInt(key string, opts ...Option) *IntRecord {
	return &IntRecord{Record: NewRecord(intSchema, key, opts...)}
}

func (r *IntRecord) Value() (int, error) {
	return r.GetInt("value")
}

func (r *IntRecord) SetValue(value int) error {
	return r.Set("value", Int(value))
}

// CounterRecord stores a current/total pair.
type CounterRecord struct {
	*Record
}

func NewCounter(key string, opts ...Option) *CounterRecord {
	return &CounterRecord{Record: NewRecord(counterSchema, key, opts...)}
}

func (c *CounterRecord) Current() (int, error) {
	return c.GetInt("current")
}

func (c *CounterRecord) Total() (int, error) {
	return c.GetInt("total")
}

// SetBoth writes current and total in one batch.
func (c *CounterRecord) SetBoth(current, total int) error {
	return c.batch("set", func() error {
		if err := c.Set("current", Int(current)); err != nil {
			return err
		}
		return c.Set("total", Int(total))
	})
}

func (c *CounterRecord) counts() (int, int, error) {
	current, err := c.Current()
	if err != nil {
		return 0, 0, err
	}
	total, err := c.Total()
	if err != nil {
		return 0, 0, err
	}
	return current, total, nil
}

// Formatted renders "current/total".
func (c *CounterRecord) Formatted() (string, error) {
	current, total, err := c.counts()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d", current, total), nil
}

func (c *CounterRecord) IsFull() (bool, error) {
	current, total, err := c.counts()
	if err != nil {
		return false, err
	}
	return current >= total, nil
}

// Remaining is total minus current; negative once current overshoots.
func (c *CounterRecord) Remaining() (int, error) {
	current, total, err := c.counts()
	if err != nil {
		return 0, err
	}
	return total - current, nil
}

func (c *CounterRecord) Dashboard() string {
	formatted, err := c.Formatted()
	if err != nil {
		return "None"
	}
	return formatted
}

// DailyActivityRecord is a counter whose total always reads
// DailyActivityTotal and which expires at the daily reset.
type DailyActivityRecord struct {
	CounterRecord
	expiry ExpiryPolicy
}

func NewDailyActivity(key string, opts ...Option) *DailyActivityRecord {
	opts = append(append([]Option(nil), opts...), WithSnapshotHook(pinActivityTotal))
	rec := NewRecord(dailyActivitySchema, key, opts...)
	return &DailyActivityRecord{
		CounterRecord: CounterRecord{Record: rec},
		expiry:        newExpiryPolicy(rec.cfg),
	}
}

func pinActivityTotal(snapshot map[string]Value) {
	snapshot["total"] = Int(DailyActivityTotal)
}

// SetBoth writes current and the fixed total in one batch.
func (d *DailyActivityRecord) SetBoth(current int) error {
	return d.CounterRecord.SetBoth(current, DailyActivityTotal)
}

func (d *DailyActivityRecord) IsExpired() (bool, error) {
	return d.expiry.Expired(d.Record)
}

// DungeonDoubleRecord counts the remaining double-drop runs of two dungeon
// kinds.
type DungeonDoubleRecord struct {
	*Record
	expiry ExpiryPolicy
}

func NewDungeonDouble(key string, opts ...Option) *DungeonDoubleRecord {
	rec := NewRecord(dungeonDoubleSchema, key, opts...)
	return &DungeonDoubleRecord{Record: rec, expiry: newExpiryPolicy(rec.cfg)}
}

func (d *DungeonDoubleRecord) Calyx() (int, error) {
	return d.GetInt("calyx")
}

func (d *DungeonDoubleRecord) Relic() (int, error) {
	return d.GetInt("relic")
}

func (d *DungeonDoubleRecord) SetCalyx(n int) error {
	return d.Set("calyx", Int(n))
}

func (d *DungeonDoubleRecord) SetRelic(n int) error {
	return d.Set("relic", Int(n))
}

func (d *DungeonDoubleRecord) IsExpired() (bool, error) {
	return d.expiry.Expired(d.Record)
}
