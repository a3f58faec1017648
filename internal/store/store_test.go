package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ripper.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store, name string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateUser(%q): %v", name, err)
	}
	return u
}

func mustSink(t *testing.T, s *Store, userID int64, name string) *Sink {
	t.Helper()
	k := &Sink{UserID: userID, Kind: SinkDirectory, Name: name, Path: name}
	if err := s.CreateSink(context.Background(), k); err != nil {
		t.Fatalf("CreateSink(%q): %v", name, err)
	}
	return k
}

func TestUsers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	u := mustUser(t, s, "alice")
	if u.ID == 0 {
		t.Fatal("expected non-zero user ID")
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Name != "alice" {
		t.Errorf("expected name alice, got %q", got.Name)
	}

	if _, err := s.GetUser(ctx, u.ID+100); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}

	if _, err := s.CreateUser(ctx, "alice"); err == nil {
		t.Error("expected error for duplicate user name")
	}

	n, err := s.CountUsers(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountUsers = %d, %v; want 1, nil", n, err)
	}
}

func TestOwnedStreams(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	k1 := mustSink(t, s, alice.ID, "music")
	k2 := mustSink(t, s, alice.ID, "backup")

	st := &Stream{UserID: alice.ID, Name: "jazz", URL: "http://radio.example/jazz", SinkIDs: []int64{k1.ID, k2.ID}}
	if err := s.CreateStream(ctx, st); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	other := &Stream{UserID: bob.ID, Name: "rock", URL: "http://radio.example/rock"}
	if err := s.CreateStream(ctx, other); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}

	t.Run("get owned stream with sinks", func(t *testing.T) {
		got, err := s.GetOwnedStream(ctx, alice.ID, st.ID)
		if err != nil {
			t.Fatalf("GetOwnedStream: %v", err)
		}
		if got == nil {
			t.Fatal("expected stream, got nil")
		}
		if got.URL != st.URL {
			t.Errorf("expected url %q, got %q", st.URL, got.URL)
		}
		if len(got.Sinks) != 2 || got.Sinks[0].Name != "music" || got.Sinks[1].Name != "backup" {
			t.Errorf("unexpected sinks: %+v", got.Sinks)
		}
	})

	t.Run("foreign stream is absent", func(t *testing.T) {
		got, err := s.GetOwnedStream(ctx, alice.ID, other.ID)
		if err != nil || got != nil {
			t.Errorf("GetOwnedStream(foreign) = %v, %v; want nil, nil", got, err)
		}
		got, err = s.GetOwnedStream(ctx, alice.ID, 9999)
		if err != nil || got != nil {
			t.Errorf("GetOwnedStream(missing) = %v, %v; want nil, nil", got, err)
		}
	})

	t.Run("list returns only owned streams", func(t *testing.T) {
		list, err := s.ListOwnedStreams(ctx, alice.ID)
		if err != nil {
			t.Fatalf("ListOwnedStreams: %v", err)
		}
		if len(list) != 1 || list[0].ID != st.ID {
			t.Fatalf("expected only stream %d, got %+v", st.ID, list)
		}
		if len(list[0].SinkIDs) != 2 {
			t.Errorf("expected 2 sink ids, got %v", list[0].SinkIDs)
		}
	})

	t.Run("update rebinds sinks", func(t *testing.T) {
		upd := &Stream{ID: st.ID, UserID: alice.ID, Name: "jazz fm", URL: st.URL, Filter: "miles", SinkIDs: []int64{k2.ID}}
		if err := s.UpdateStream(ctx, upd); err != nil {
			t.Fatalf("UpdateStream: %v", err)
		}
		got, _ := s.GetOwnedStream(ctx, alice.ID, st.ID)
		if got.Name != "jazz fm" || got.Filter != "miles" {
			t.Errorf("update not applied: %+v", got)
		}
		if len(got.Sinks) != 1 || got.Sinks[0].ID != k2.ID {
			t.Errorf("expected only sink %d, got %+v", k2.ID, got.Sinks)
		}
	})

	t.Run("update of foreign stream", func(t *testing.T) {
		upd := &Stream{ID: other.ID, UserID: alice.ID, Name: "x", URL: "http://x"}
		if err := s.UpdateStream(ctx, upd); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("binding a foreign sink fails", func(t *testing.T) {
		bobSink := mustSink(t, s, bob.ID, "bobs")
		bad := &Stream{UserID: alice.ID, Name: "x", URL: "http://x", SinkIDs: []int64{bobSink.ID}}
		if err := s.CreateStream(ctx, bad); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		list, _ := s.ListOwnedStreams(ctx, alice.ID)
		if len(list) != 1 {
			t.Errorf("failed create must not leave a row, got %d streams", len(list))
		}
	})

	t.Run("delete sink unbinds it", func(t *testing.T) {
		if err := s.DeleteSink(ctx, alice.ID, k2.ID); err != nil {
			t.Fatalf("DeleteSink: %v", err)
		}
		got, _ := s.GetOwnedStream(ctx, alice.ID, st.ID)
		if len(got.Sinks) != 0 {
			t.Errorf("expected no sinks, got %+v", got.Sinks)
		}
		if err := s.DeleteSink(ctx, alice.ID, k2.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("delete stream", func(t *testing.T) {
		if err := s.DeleteStream(ctx, bob.ID, st.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting foreign stream, got %v", err)
		}
		if err := s.DeleteStream(ctx, alice.ID, st.ID); err != nil {
			t.Fatalf("DeleteStream: %v", err)
		}
		got, err := s.GetOwnedStream(ctx, alice.ID, st.ID)
		if err != nil || got != nil {
			t.Errorf("expected stream gone, got %v, %v", got, err)
		}
	})
}

func TestSinks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	k := &Sink{UserID: alice.ID, Kind: SinkFTP, Name: "nas", Host: "nas.local", Port: 21, Username: "u", Password: "p", Path: "/music"}
	if err := s.CreateSink(ctx, k); err != nil {
		t.Fatalf("CreateSink: %v", err)
	}

	got, err := s.GetSink(ctx, alice.ID, k.ID)
	if err != nil {
		t.Fatalf("GetSink: %v", err)
	}
	if got.Host != "nas.local" || got.Password != "p" || got.Port != 21 {
		t.Errorf("unexpected sink: %+v", got)
	}
	if _, err := s.GetSink(ctx, bob.ID, k.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign sink, got %v", err)
	}

	list, err := s.ListSinks(ctx, bob.ID)
	if err != nil || len(list) != 0 {
		t.Errorf("ListSinks(bob) = %v, %v; want empty", list, err)
	}
}

func TestInMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mustUser(t, s, "alice")
}

func TestStreamValidate(t *testing.T) {
	tests := []struct {
		name    string
		stream  Stream
		wantErr bool
	}{
		{"valid", Stream{Name: "a", URL: "http://radio.example/live"}, false},
		{"valid with filter", Stream{Name: "a", URL: "https://radio.example", Filter: "^miles"}, false},
		{"missing name", Stream{URL: "http://radio.example"}, true},
		{"ftp scheme", Stream{Name: "a", URL: "ftp://radio.example"}, true},
		{"no host", Stream{Name: "a", URL: "http://"}, true},
		{"bad filter", Stream{Name: "a", URL: "http://radio.example", Filter: "("}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stream.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSinkValidate(t *testing.T) {
	tests := []struct {
		name    string
		sink    Sink
		wantErr bool
	}{
		{"ftp", Sink{Name: "a", Kind: SinkFTP, Host: "h"}, false},
		{"ftp without host", Sink{Name: "a", Kind: SinkFTP}, true},
		{"http", Sink{Name: "a", Kind: SinkHTTP, URL: "https://up.example/songs"}, false},
		{"http bad url", Sink{Name: "a", Kind: SinkHTTP, URL: "nope"}, true},
		{"directory", Sink{Name: "a", Kind: SinkDirectory, Path: "jazz"}, false},
		{"directory escape", Sink{Name: "a", Kind: SinkDirectory, Path: "../etc"}, true},
		{"unknown kind", Sink{Name: "a", Kind: "s3"}, true},
		{"missing name", Sink{Kind: SinkDirectory}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sink.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
