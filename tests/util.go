package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/beshoyehab/schoolbot/core/attendance"
	"github.com/beshoyehab/schoolbot/core/class"
	"github.com/beshoyehab/schoolbot/core/member"
)

func CreateMember(
	t *testing.T,
	repo member.Repository,
	name string,
	tid int64,
	role member.Role,
	classID *int,
	pwd string,
	createdAt ...time.Time,
) member.Member {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	mbr := member.Member{
		TelegramID: tid,
		Name:       name,
		Role:       role,
		ClassID:    classID,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	mbr.SetActive(true)
	if pwd != "" {
		if err := mbr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateMember(): %v", err)
		}
	}
	mbr, err := repo.CreateMember(context.Background(), mbr)
	if err != nil {
		t.Fatalf("CreateMember(): %v", err)
	}
	return mbr
}

func CreateClass(t *testing.T, repo class.Repository, name string) class.Class {
	t.Helper()

	tstamp := time.Now().UTC()
	cls, err := repo.CreateClass(context.Background(), class.Class{
		Name:      name,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}
	return cls
}

func MarkRecord(
	t *testing.T,
	repo attendance.Repository,
	memberID int,
	classID *int,
	date time.Time,
	present bool,
	note string,
	markedBy int,
) attendance.Record {
	t.Helper()

	tstamp := time.Now().UTC()
	rec, err := repo.UpsertRecord(context.Background(), attendance.Record{
		MemberID:  memberID,
		ClassID:   classID,
		Date:      date,
		Present:   present,
		Note:      note,
		MarkedBy:  markedBy,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("MarkRecord(): %v", err)
	}
	return rec
}
