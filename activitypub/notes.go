package activitypub

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fedipub/fedipub/models"
	"gorm.io/gorm"
)

// maxResolveDepth bounds how far up an inReplyTo chain the engine will
// walk when ingesting a remote note. Chains deeper than this, including
// cyclic ones, are refused rather than partially ingested.
const maxResolveDepth = 20

var errThreadTooDeep = fmt.Errorf("reply chain exceeds %d ancestors", maxResolveDepth)

var (
	hashtagPattern = regexp.MustCompile(`#\w+`)
	mentionPattern = regexp.MustCompile(`\b([a-zA-Z0-9_.-]+)@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})\b`)
)

// hashtagTags returns a Hashtag tag descriptor for every #tag in content,
// with hrefs on the given domain. The same note carries different hrefs
// for different recipients.
func hashtagTags(content, domain string) []map[string]any {
	var tags []map[string]any
	for _, tag := range hashtagPattern.FindAllString(content, -1) {
		tags = append(tags, map[string]any{
			"type": "Hashtag",
			"href": fmt.Sprintf("https://%s/tags/%s", domain, tag[1:]),
			"name": tag,
		})
	}
	return tags
}

// mentionTags resolves every unique user@domain mention in content to a
// Mention tag descriptor. Each unique mention costs at most one remote
// resolution; mentions that cannot be resolved are logged and skipped.
func mentionTags(ctx context.Context, env *Env, content string) []map[string]any {
	var tags []map[string]any
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		handle, user, domain := m[0], m[1], m[2]
		if seen[handle] {
			continue
		}
		seen[handle] = true
		actor, err := env.Directory.ResolveHandle(ctx, user, domain)
		if err != nil {
			env.Log().Info("skipping unresolvable mention", "mention", handle, "err", err)
			continue
		}
		tags = append(tags, map[string]any{
			"type": "Mention",
			"href": actor.URL,
			"name": handle,
		})
	}
	return tags
}

// noteTags returns the full tag list for a note as seen from domain.
func noteTags(ctx context.Context, env *Env, content, domain string) []map[string]any {
	return append(mentionTags(ctx, env, content), hashtagTags(content, domain)...)
}

// noteObject renders the Note object shared by the activity and status
// representations. pub is the local actor responsible for the note's
// delivery; for a remote reply that is its nearest local ancestor.
func noteObject(note *models.Note, pub *models.LocalActor, tags []map[string]any) map[string]any {
	var inReplyTo any
	if note.Parent != nil {
		inReplyTo = note.Parent.URI()
	}
	actor := note.Actor()
	obj := map[string]any{
		"id":           note.URI(),
		"type":         "Note",
		"summary":      nil,
		"inReplyTo":    inReplyTo,
		"published":    formatTime(note.PublishedAt),
		"updated":      formatTime(note.UpdatedAt),
		"attributedTo": actor.AccountURL(),
		"to":           []string{"https://www.w3.org/ns/activitystreams#Public"},
		"cc":           []string{pub.FollowersURL()},
		"sensitive":    note.Sensitive,
		"content":      note.Content,
		"url":          note.ContentURL,
		"atomUri":      note.ContentURL,
		"tag":          tags,
	}
	if note.Tombstone {
		// identity and thread position survive, the content does not
		obj["type"] = "Tombstone"
		obj["content"] = ""
		obj["tag"] = []map[string]any{}
	}
	if len(note.Attachments) > 0 {
		var attachments []map[string]any
		for _, a := range note.Attachments {
			attachments = append(attachments, map[string]any{
				"type":      "Document",
				"mediaType": a.MediaType,
				"url":       a.URL,
				"width":     a.Width,
				"height":    a.Height,
			})
		}
		obj["attachment"] = attachments
	}
	return obj
}

// noteActivity wraps the note object in its Create activity.
func noteActivity(note *models.Note, pub *models.LocalActor, tags []map[string]any) map[string]any {
	return map[string]any{
		"id":        note.URI() + "/activity",
		"type":      "Create",
		"actor":     pub.URI(),
		"published": formatTime(note.PublishedAt),
		"to":        []string{"https://www.w3.org/ns/activitystreams#Public"},
		"cc":        []string{pub.FollowersURL()},
		"object":    noteObject(note, pub, tags),
	}
}

// publisher returns the local actor responsible for delivering changes to
// the note: the note's own author, or for a remote reply the nearest
// local ancestor in its thread.
func publisher(db *gorm.DB, note *models.Note) (*models.LocalActor, error) {
	notes := models.NewNotes(db)
	for n := note; ; {
		if n.LocalActor != nil {
			return n.LocalActor, nil
		}
		if n.ParentID == nil {
			return nil, fmt.Errorf("note %s has no local ancestor", note.URI())
		}
		parent, err := notes.Find(*n.ParentID)
		if err != nil {
			return nil, err
		}
		n = parent
	}
}

// upsertRemoteNote ingests a remote note referenced by obj["id"],
// re-fetching the canonical document rather than trusting the inbox
// payload, and resolving its reply chain recursively. depth counts the
// ancestors walked so far.
func upsertRemoteNote(ctx context.Context, env *Env, signAs *models.LocalActor, obj map[string]any, depth int) (*models.Note, error) {
	if depth >= maxResolveDepth {
		return nil, errThreadTooDeep
	}
	id := stringFromAny(obj["id"])
	if id == "" {
		return nil, errors.New("object has no id")
	}

	client, err := NewClient(signAs)
	if err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()
	var full map[string]any
	if err := client.Get(fetchCtx, id, &full); err != nil {
		return nil, &DiscoveryError{URL: id, Err: err}
	}
	canonical := stringFromAny(full["id"])
	if canonical == "" {
		return nil, &DiscoveryError{URL: id, Err: errors.New("fetched object has no id")}
	}

	remote, err := env.Directory.ResolveURL(ctx, stringFromAny(full["attributedTo"]), signAs)
	if err != nil {
		return nil, err
	}

	notes := models.NewNotes(env.DB)
	var parent *models.Note
	if replyURL := stringFromAny(full["inReplyTo"]); replyURL != "" {
		parent, err = resolveReplyTarget(ctx, env, signAs, replyURL, depth)
		if err != nil {
			return nil, err
		}
	}

	published := timeFromAnyOrZero(full["published"])
	if published.IsZero() {
		published = time.Now()
	}
	updated := timeFromAnyOrZero(full["updated"])
	if updated.IsZero() {
		updated = published
	}

	if existing, err := notes.FindByURL(canonical); err == nil {
		err := env.DB.Model(existing).Updates(map[string]any{
			"content":    stringFromAny(full["content"]),
			"sensitive":  boolFromAny(full["sensitive"]),
			"updated_at": updated,
		}).Error
		if err != nil {
			return nil, err
		}
		return notes.FindByURL(canonical)
	}

	note := &models.Note{
		RemoteActorID: &remote.ID,
		Parent:        parent,
		PublishedAt:   published,
		UpdatedAt:     updated,
		Content:       stringFromAny(full["content"]),
		ContentURL:    canonical,
		Sensitive:     boolFromAny(full["sensitive"]),
	}
	if err := notes.Create(note); err != nil {
		return nil, err
	}
	return notes.Find(note.ID)
}

// resolveReplyTarget returns the note a reply points at, looking locally
// first and walking to the remote thread otherwise.
func resolveReplyTarget(ctx context.Context, env *Env, signAs *models.LocalActor, replyURL string, depth int) (*models.Note, error) {
	notes := models.NewNotes(env.DB)
	if _, domain, id, ok := models.ParseStatusURI(replyURL); ok && domain == signAs.Domain {
		return notes.Find(id)
	}
	if note, err := notes.FindByURL(replyURL); err == nil {
		return note, nil
	}
	return upsertRemoteNote(ctx, env, signAs, map[string]any{"id": replyURL}, depth+1)
}
