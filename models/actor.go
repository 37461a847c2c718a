package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fedipub/fedipub/internal/crypto"
	"github.com/fedipub/fedipub/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Actor is the capability surface shared by local and remote actors.
// A note is attributed to exactly one of the two.
type Actor interface {
	// Handle returns the user@domain form of the actor's identity.
	Handle() string
	// AccountURL returns the actor's public profile URL.
	AccountURL() string
	// IconURL returns the actor's avatar URL, or "" if it has none.
	IconURL() string
	// PreferredUsername returns the actor's username without the domain.
	PreferredUsername() string
}

type ActorType string

func (ActorType) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "postgres":
		return "enum('Person', 'Service')"
	case "sqlite":
		return "TEXT"
	default:
		return ""
	}
}

// A LocalActor is a federated identity hosted on this instance. It owns
// an RSA keypair; the private key never leaves the instance boundary.
type LocalActor struct {
	ID          snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Type        ActorType `gorm:"default:'Person';not null"`
	Name        string    `gorm:"size:64;uniqueIndex:idx_local_actors_name_domain;not null"`
	Domain      string    `gorm:"size:64;uniqueIndex:idx_local_actors_name_domain;not null"`
	DisplayName string    `gorm:"size:128"`
	Summary     string    `gorm:"type:text"`
	Icon        string    `gorm:"size:255"`
	Image       string    `gorm:"size:255"`
	PublicKey   []byte    `gorm:"type:text;not null"`
	PrivateKey  []byte    `gorm:"type:text;not null"`
}

func (a *LocalActor) Handle() string {
	return a.Name + "@" + a.Domain
}

// URI returns the actor's canonical ActivityPub identity URL.
func (a *LocalActor) URI() string {
	return fmt.Sprintf("https://%s/pub/%s", a.Domain, a.Name)
}

func (a *LocalActor) AccountURL() string {
	return a.URI()
}

func (a *LocalActor) IconURL() string {
	return a.Icon
}

func (a *LocalActor) PreferredUsername() string {
	return a.Name
}

func (a *LocalActor) PublicKeyID() string {
	return a.URI() + "#main-key"
}

func (a *LocalActor) InboxURL() string     { return a.URI() + "/inbox" }
func (a *LocalActor) OutboxURL() string    { return a.URI() + "/outbox" }
func (a *LocalActor) FollowersURL() string { return a.URI() + "/followers" }
func (a *LocalActor) FollowingURL() string { return a.URI() + "/following" }

// StatusURL returns the canonical URL of one of the actor's notes.
func (a *LocalActor) StatusURL(id snowflake.ID) string {
	return fmt.Sprintf("%s/statuses/%s", a.URI(), id)
}

// ParseProfileURI extracts the username and domain from a local profile
// URL of the form https://{domain}/pub/{username}.
func ParseProfileURI(uri string) (username, domain string, ok bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", false
	}
	rest, found := strings.CutPrefix(u.Path, "/pub/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return "", "", false
	}
	return rest, u.Host, true
}

type LocalActors struct {
	db *gorm.DB
}

func NewLocalActors(db *gorm.DB) *LocalActors {
	return &LocalActors{db: db}
}

// Find finds a local actor by its name and domain.
func (a *LocalActors) Find(name, domain string) (*LocalActor, error) {
	var actor LocalActor
	return &actor, a.db.Where("name = ? AND domain = ?", name, domain).Take(&actor).Error
}

// FindByURI returns the local actor a profile URL refers to, if the URL
// is a local profile path.
func (a *LocalActors) FindByURI(uri string) (*LocalActor, error) {
	username, domain, ok := ParseProfileURI(uri)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return a.Find(username, domain)
}

// Create creates a local actor with a freshly generated keypair. The
// keypair is generated here, once, and is immutable thereafter.
func (a *LocalActors) Create(name, domain string, typ ActorType) (*LocalActor, error) {
	kp, err := crypto.GenerateRSAKeypair()
	if err != nil {
		return nil, err
	}
	actor := &LocalActor{
		ID:          snowflake.Now(),
		Type:        typ,
		Name:        name,
		Domain:      domain,
		DisplayName: name,
		PublicKey:   kp.PublicKey,
		PrivateKey:  kp.PrivateKey,
	}
	return actor, a.db.Create(actor).Error
}

// Profile is the cached document describing a remote actor. The fields
// below are the subset the engine relies on; at minimum id, inbox and
// publicKey must be present for federation to work.
type Profile struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Summary           string `json:"summary"`
	URL               string `json:"url"`
	Icon              struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
	Endpoints struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// A RemoteActor is the cached representation of a foreign actor, created
// lazily on first interaction. Its profile is refreshed only by explicit
// re-fetch, never implicitly expired.
type RemoteActor struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string  `gorm:"size:64;uniqueIndex:idx_remote_actors_name_domain;not null"`
	Domain    string  `gorm:"size:64;uniqueIndex:idx_remote_actors_name_domain;not null"`
	URL       string  `gorm:"uniqueIndex;size:255;not null"`
	Profile   Profile `gorm:"serializer:json;not null"`
}

func (a *RemoteActor) Handle() string {
	return a.Name + "@" + a.Domain
}

func (a *RemoteActor) AccountURL() string {
	if a.Profile.URL != "" {
		return a.Profile.URL
	}
	return a.URL
}

func (a *RemoteActor) IconURL() string {
	return a.Profile.Icon.URL
}

func (a *RemoteActor) PreferredUsername() string {
	return a.Name
}

// Inbox returns the actor's shared inbox URL if it advertises one, or
// its personal inbox URL.
func (a *RemoteActor) Inbox() string {
	if a.Profile.Endpoints.SharedInbox != "" {
		return a.Profile.Endpoints.SharedInbox
	}
	return a.Profile.Inbox
}

func (a *RemoteActor) PublicKeyPem() []byte {
	return []byte(a.Profile.PublicKey.PublicKeyPem)
}

type RemoteActors struct {
	db *gorm.DB
}

func NewRemoteActors(db *gorm.DB) *RemoteActors {
	return &RemoteActors{db: db}
}

// Find finds a remote actor by its name and domain.
func (a *RemoteActors) Find(name, domain string) (*RemoteActor, error) {
	var actor RemoteActor
	return &actor, a.db.Where("name = ? AND domain = ?", name, domain).Take(&actor).Error
}

// FindByURL returns the remote actor with the given canonical URL.
func (a *RemoteActors) FindByURL(url string) (*RemoteActor, error) {
	var actors []RemoteActor
	if err := a.db.Where("url = ?", url).Find(&actors).Error; err != nil {
		return nil, err
	}
	if len(actors) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &actors[0], nil
}

// Upsert stores the actor, keeping the existing row if a concurrent
// request persisted the same URL first, and returns the winning row.
func (a *RemoteActors) Upsert(actor *RemoteActor) (*RemoteActor, error) {
	if actor.ID == 0 {
		actor.ID = snowflake.Now()
	}
	err := a.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"profile", "updated_at"}),
	}).Create(actor).Error
	if err != nil {
		return nil, err
	}
	return a.FindByURL(actor.URL)
}
