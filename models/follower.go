package models

import (
	"time"

	"github.com/fedipub/fedipub/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A Follower is a directed edge recording that a remote actor follows a
// local actor. The composite primary key enforces at most one edge per
// directed pair, which keeps duplicate Follow activities idempotent even
// under concurrent delivery.
type Follower struct {
	LocalActorID  snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	LocalActor    *LocalActor  `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	RemoteActorID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	RemoteActor   *RemoteActor `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	CreatedAt     time.Time
}

// A Following is the inverse direction: a local actor following a remote
// actor. The two relations are independent graphs; creating one never
// implies the other.
type Following struct {
	LocalActorID  snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	LocalActor    *LocalActor  `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	RemoteActorID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	RemoteActor   *RemoteActor `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	CreatedAt     time.Time
}

type Followers struct {
	db *gorm.DB
}

func NewFollowers(db *gorm.DB) *Followers {
	return &Followers{db: db}
}

// Follow records that remote follows local. Recording the same edge
// twice is a no-op.
func (f *Followers) Follow(local *LocalActor, remote *RemoteActor) error {
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Follower{
		LocalActorID:  local.ID,
		RemoteActorID: remote.ID,
	}).Error
}

// Unfollow removes the edge. Removing an edge that does not exist
// returns gorm.ErrRecordNotFound, so a double-Undo is observable.
func (f *Followers) Unfollow(local *LocalActor, remote *RemoteActor) error {
	res := f.db.Where("local_actor_id = ? AND remote_actor_id = ?", local.ID, remote.ID).Delete(&Follower{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Count returns the number of followers of local.
func (f *Followers) Count(local *LocalActor) (int64, error) {
	var count int64
	err := f.db.Model(&Follower{}).Where("local_actor_id = ?", local.ID).Count(&count).Error
	return count, err
}

// All returns every follower of local, most recent first.
func (f *Followers) All(local *LocalActor) ([]Follower, error) {
	var followers []Follower
	err := f.db.Preload("RemoteActor").Where("local_actor_id = ?", local.ID).
		Order("created_at desc").Find(&followers).Error
	return followers, err
}

// Page returns one page of local's followers, most recent first.
func (f *Followers) Page(local *LocalActor, page, size int) ([]Follower, error) {
	var followers []Follower
	err := f.db.Preload("RemoteActor").Where("local_actor_id = ?", local.ID).
		Order("created_at desc").Scopes(PageScope(page, size)).Find(&followers).Error
	return followers, err
}

type Followings struct {
	db *gorm.DB
}

func NewFollowings(db *gorm.DB) *Followings {
	return &Followings{db: db}
}

// Follow records that local follows remote. Idempotent.
func (f *Followings) Follow(local *LocalActor, remote *RemoteActor) error {
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Following{
		LocalActorID:  local.ID,
		RemoteActorID: remote.ID,
	}).Error
}

// Unfollow removes the edge, returning gorm.ErrRecordNotFound if it was
// not present.
func (f *Followings) Unfollow(local *LocalActor, remote *RemoteActor) error {
	res := f.db.Where("local_actor_id = ? AND remote_actor_id = ?", local.ID, remote.ID).Delete(&Following{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Count returns the number of actors local follows.
func (f *Followings) Count(local *LocalActor) (int64, error) {
	var count int64
	err := f.db.Model(&Following{}).Where("local_actor_id = ?", local.ID).Count(&count).Error
	return count, err
}

// Page returns one page of the actors local follows, most recent first.
func (f *Followings) Page(local *LocalActor, page, size int) ([]Following, error) {
	var followings []Following
	err := f.db.Preload("RemoteActor").Where("local_actor_id = ?", local.ID).
		Order("created_at desc").Scopes(PageScope(page, size)).Find(&followings).Error
	return followings, err
}
