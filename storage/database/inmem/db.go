package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
)

// Tables are always locked in this order: user, course, billing.
type (
	DB struct {
		txMu    sync.Mutex
		user    *userTable
		course  *courseTable
		billing *billingTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]user.User
	}

	groupStudent struct {
		groupID  string
		userID   string
		joinedAt time.Time
	}

	courseTable struct {
		sync.RWMutex
		courses  map[string]course.Course
		lessons  []course.Lesson // creation order
		groups   []course.Group  // creation order, StudentsCount unset
		students []groupStudent
	}

	billingTable struct {
		sync.RWMutex
		balances      map[string]billing.Balance
		subscriptions []billing.Subscription
		accesses      []billing.Access
	}

	snapshot struct {
		users         map[string]user.User
		courses       map[string]course.Course
		lessons       []course.Lesson
		groups        []course.Group
		students      []groupStudent
		balances      map[string]billing.Balance
		subscriptions []billing.Subscription
		accesses      []billing.Access
	}
)

func Open() *DB {
	return &DB{
		user:    &userTable{table: make(map[string]user.User)},
		course:  &courseTable{courses: make(map[string]course.Course)},
		billing: &billingTable{balances: make(map[string]billing.Balance)},
	}
}

func (db *DB) lockAll() func() {
	db.user.Lock()
	db.course.Lock()
	db.billing.Lock()
	return func() {
		db.billing.Unlock()
		db.course.Unlock()
		db.user.Unlock()
	}
}

func (db *DB) snapshot() snapshot {
	unlock := db.lockAll()
	defer unlock()

	snap := snapshot{
		users:         make(map[string]user.User, len(db.user.table)),
		courses:       make(map[string]course.Course, len(db.course.courses)),
		lessons:       append([]course.Lesson(nil), db.course.lessons...),
		groups:        append([]course.Group(nil), db.course.groups...),
		students:      append([]groupStudent(nil), db.course.students...),
		balances:      make(map[string]billing.Balance, len(db.billing.balances)),
		subscriptions: append([]billing.Subscription(nil), db.billing.subscriptions...),
		accesses:      append([]billing.Access(nil), db.billing.accesses...),
	}
	for k, v := range db.user.table {
		v.Roles = append([]string(nil), v.Roles...)
		snap.users[k] = v
	}
	for k, v := range db.course.courses {
		snap.courses[k] = v
	}
	for k, v := range db.billing.balances {
		snap.balances[k] = v
	}
	return snap
}

func (db *DB) restore(snap snapshot) {
	unlock := db.lockAll()
	defer unlock()

	db.user.table = snap.users
	db.course.courses = snap.courses
	db.course.lessons = snap.lessons
	db.course.groups = snap.groups
	db.course.students = snap.students
	db.billing.balances = snap.balances
	db.billing.subscriptions = snap.subscriptions
	db.billing.accesses = snap.accesses
}

// Flush empties every table.
func (db *DB) Flush() {
	db.restore(Open().snapshot())
}

// txExecutor marks the repository calls made within a unit of work.
// The inmem repositories never call its DBExecutor methods.
type txExecutor struct {
	core.DBExecutor
}

// writeLock makes writes issued outside of a unit of work wait for the running one,
// so that its rollback never discards them. The returned func releases the lock.
func (db *DB) writeLock(exec []core.DBExecutor) func() {
	for _, e := range exec {
		if _, ok := e.(*txExecutor); ok {
			return func() {}
		}
	}
	db.txMu.Lock()
	return db.txMu.Unlock
}

type transactor struct {
	db *DB
}

var _ core.Transactor = (*transactor)(nil) // interface compliance check

// NewTransactor serializes units of work along with the writes made outside of them.
// The tables are restored when a unit of work fails.
func NewTransactor(db *DB) core.Transactor {
	return &transactor{db: db}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	if err = ctx.Err(); err != nil {
		return err
	}
	snap := t.db.snapshot()
	committed := false
	defer func() {
		if !committed {
			t.db.restore(snap)
		}
	}()
	if err = fn(&txExecutor{}); err != nil {
		return err
	}
	committed = true
	return nil
}
