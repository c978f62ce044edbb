package graph

import (
	"strings"
	"testing"

	"github.com/nexuslab/nexus/pkg/common"
)

const chattyBody = `Hey Bob,

Thanks for walking me through the migration plan yesterday. I talked it
over with Carol and we both think phasing the rollout over two weeks is
the right call. She offered to own the database side since she built the
original schema.

Can you loop in Dave from platform? He and Carol worked together on the
last migration and he knows where the sharp edges are.

Cheers,
Alice`

func TestShouldProcess(t *testing.T) {
	triage := NewTriage(TriageConfig{})

	t.Run("substantive thread passes", func(t *testing.T) {
		ok, reason := triage.ShouldProcess(&common.Thread{
			Subject:      "Migration plan",
			Participants: []string{"alice", "bob"},
			Text:         chattyBody,
		})
		if !ok {
			t.Fatalf("expected pass, got rejection: %s", reason)
		}
	})

	t.Run("single participant rejected", func(t *testing.T) {
		ok, reason := triage.ShouldProcess(&common.Thread{
			Subject:      "Note to self",
			Participants: []string{"alice"},
			Text:         chattyBody,
		})
		if ok {
			t.Fatal("expected rejection")
		}
		if !strings.Contains(reason, "participants") {
			t.Errorf("unexpected reason: %s", reason)
		}
	})

	t.Run("mentioned people count toward participants", func(t *testing.T) {
		ok, reason := triage.ShouldProcess(&common.Thread{
			Subject:         "Migration plan",
			Participants:    []string{"alice"},
			PeopleMentioned: []string{"Bob", "carol"},
			Text:            chattyBody,
		})
		if !ok {
			t.Fatalf("expected pass, got rejection: %s", reason)
		}
	})

	t.Run("out of office rejected", func(t *testing.T) {
		ok, reason := triage.ShouldProcess(&common.Thread{
			Subject:      "Automatic reply: Migration plan",
			Participants: []string{"alice", "bob"},
			Text:         chattyBody,
		})
		if ok {
			t.Fatal("expected rejection")
		}
		if !strings.Contains(reason, "subject") {
			t.Errorf("unexpected reason: %s", reason)
		}
	})

	t.Run("calendar response rejected", func(t *testing.T) {
		ok, _ := triage.ShouldProcess(&common.Thread{
			Subject:      "Accepted: Weekly sync",
			Participants: []string{"alice", "bob"},
			Text:         chattyBody,
		})
		if ok {
			t.Fatal("expected rejection")
		}
	})

	t.Run("quoted-only body rejected", func(t *testing.T) {
		quoted := "Thanks!\n\nOn Mon, Jan 5, Bob wrote:\n> " +
			strings.ReplaceAll(chattyBody, "\n", "\n> ")
		ok, reason := triage.ShouldProcess(&common.Thread{
			Subject:      "Re: Migration plan",
			Participants: []string{"alice", "bob"},
			Text:         quoted,
		})
		if ok {
			t.Fatal("expected rejection")
		}
		if !strings.Contains(reason, "tokens") {
			t.Errorf("unexpected reason: %s", reason)
		}
	})

	t.Run("token gate holds without a tokenizer", func(t *testing.T) {
		offline := NewTriage(TriageConfig{})
		offline.encoding = "no_such_encoding"

		ok, reason := offline.ShouldProcess(&common.Thread{
			Subject:      "Re: Migration plan",
			Participants: []string{"alice", "bob"},
			Text:         "Thanks!",
		})
		if ok {
			t.Fatal("expected rejection")
		}
		if !strings.Contains(reason, "tokens") {
			t.Errorf("unexpected reason: %s", reason)
		}

		if ok, reason := offline.ShouldProcess(&common.Thread{
			Subject:      "Migration plan",
			Participants: []string{"alice", "bob"},
			Text:         chattyBody,
		}); !ok {
			t.Fatalf("expected pass, got rejection: %s", reason)
		}
	})
}

func TestStripBody(t *testing.T) {
	t.Run("drops quotes and reply header", func(t *testing.T) {
		body := "New content here.\n\nOn Mon, Bob wrote:\n> old content\n> more old content"
		got := StripBody(body)
		if got != "New content here." {
			t.Errorf("unexpected stripped body: %q", got)
		}
	})

	t.Run("stops at signature marker", func(t *testing.T) {
		body := "Real message.\n--\nAlice Smith\nVP of Everything"
		got := StripBody(body)
		if got != "Real message." {
			t.Errorf("unexpected stripped body: %q", got)
		}
	})

	t.Run("stops at mobile footer", func(t *testing.T) {
		body := "Quick answer: yes.\nSent from my iPhone"
		got := StripBody(body)
		if got != "Quick answer: yes." {
			t.Errorf("unexpected stripped body: %q", got)
		}
	})

	t.Run("drops forwarded headers", func(t *testing.T) {
		body := "FYI below.\n---------- Forwarded message ----------\nFrom: bob@example.com\ninner text"
		got := StripBody(body)
		if strings.Contains(got, "bob@example.com") {
			t.Errorf("header survived stripping: %q", got)
		}
	})
}
