// Package dummydb is an in-memory database used by tests and local hacking.
package dummydb

import (
	"sync"

	"github.com/beshoyehab/schoolbot/core/attendance"
	"github.com/beshoyehab/schoolbot/core/class"
	"github.com/beshoyehab/schoolbot/core/member"
)

type (
	DB struct {
		member     *memberTable
		class      *classTable
		attendance *attendanceTable
	}

	memberTable struct {
		sync.RWMutex
		table   map[int]*member.Member
		pkCount int
	}

	classTable struct {
		sync.RWMutex
		table   map[int]*class.Class
		pkCount int
	}

	attendanceTable struct {
		sync.RWMutex
		table   map[int]*attendance.Record
		pkCount int
	}
)

func Open() (*DB, error) {
	db := &DB{
		member:     &memberTable{table: make(map[int]*member.Member)},
		class:      &classTable{table: make(map[int]*class.Class)},
		attendance: &attendanceTable{table: make(map[int]*attendance.Record)},
	}
	return db, nil
}
