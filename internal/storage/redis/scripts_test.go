package redis

import (
	"context"
	"slices"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func sessionKeys(sessionID, assetID string) []string {
	return []string{
		"kp:session:" + sessionID,
		"kp:sessions:live",
		"kp:asset-live:" + assetID,
		"kp:asset-sessions:" + assetID,
	}
}

func TestWriteSessionScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	tests := []struct {
		name        string
		mode        string
		sessionID   string
		live        string
		wantErr     string
		wantInSet   bool
		wantPointer string
	}{
		{
			name:        "insert live session",
			mode:        "insert",
			sessionID:   "session-1",
			live:        "1",
			wantInSet:   true,
			wantPointer: "session-1",
		},
		{
			name:        "insert duplicate id",
			mode:        "insert",
			sessionID:   "session-1",
			live:        "1",
			wantErr:     conflictReply,
			wantInSet:   true,
			wantPointer: "session-1",
		},
		{
			name:        "insert second live session for asset",
			mode:        "insert",
			sessionID:   "session-2",
			live:        "1",
			wantErr:     conflictReply,
			wantInSet:   false,
			wantPointer: "session-1",
		},
		{
			name:        "replace missing session",
			mode:        "replace",
			sessionID:   "session-3",
			live:        "0",
			wantErr:     conflictReply,
			wantInSet:   false,
			wantPointer: "session-1",
		},
		{
			name:        "finish live session",
			mode:        "replace",
			sessionID:   "session-1",
			live:        "0",
			wantInSet:   false,
			wantPointer: "",
		},
		{
			name:        "insert live session once asset is free",
			mode:        "insert",
			sessionID:   "session-2",
			live:        "1",
			wantInSet:   true,
			wantPointer: "session-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := sessionKeys(tt.sessionID, "asset-1")

			err := client.Eval(ctx, writeSessionScript, keys,
				tt.mode, tt.sessionID, tt.live, 1000,
				"id", tt.sessionID, "asset_id", "asset-1").Err()

			if tt.wantErr != "" {
				if !isReply(err, tt.wantErr) {
					t.Fatalf("Expected %s error, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("Script execution failed: %v", err)
			}

			isMember, err := client.SIsMember(ctx, keys[1], tt.sessionID).Result()
			if err != nil {
				t.Fatalf("Failed to check set membership: %v", err)
			}
			if isMember != tt.wantInSet {
				t.Errorf("Expected set membership=%v, got %v", tt.wantInSet, isMember)
			}

			pointer, err := client.Get(ctx, keys[2]).Result()
			if err != nil && err != redis.Nil {
				t.Fatalf("Failed to read live pointer: %v", err)
			}
			if pointer != tt.wantPointer {
				t.Errorf("Expected live pointer %q, got %q", tt.wantPointer, pointer)
			}
		})
	}
}

func TestWriteSessionScript_ClearsStaleFields(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()
	keys := sessionKeys("session-1", "asset-1")

	err := client.Eval(ctx, writeSessionScript, keys,
		"insert", "session-1", "1", 1000,
		"id", "session-1", "paused_at", "2026-01-01T00:00:00Z").Err()
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err = client.Eval(ctx, writeSessionScript, keys,
		"replace", "session-1", "1", 1000,
		"id", "session-1").Err()
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	exists, err := client.HExists(ctx, keys[0], "paused_at").Result()
	if err != nil {
		t.Fatalf("HEXISTS failed: %v", err)
	}
	if exists {
		t.Error("Expected paused_at to be removed by replace")
	}

	members, err := client.ZRange(ctx, keys[3], 0, -1).Result()
	if err != nil {
		t.Fatalf("ZRANGE failed: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("Expected one history entry, got %v", members)
	}
}

func TestDeleteSessionScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()
	keys := sessionKeys("session-1", "asset-1")

	if err := client.Eval(ctx, deleteSessionScript, keys, "session-1").Err(); !isReply(err, notFoundReply) {
		t.Fatalf("Expected NOTFOUND for missing session, got %v", err)
	}

	err := client.Eval(ctx, writeSessionScript, keys,
		"insert", "session-1", "1", 1000, "id", "session-1").Err()
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := client.Eval(ctx, deleteSessionScript, keys, "session-1").Err(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	for _, key := range []string{keys[0], keys[2], keys[3]} {
		if mr.Exists(key) {
			t.Errorf("Expected %s to be removed", key)
		}
	}
	if ok, _ := mr.SIsMember(keys[1], "session-1"); ok {
		t.Error("Expected session to leave the live set")
	}
}

func TestUpsertAssetScript_PreservesCreatedAt(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()
	keys := []string{"kp:asset:asset-1", "kp:assets"}

	err := client.Eval(ctx, upsertAssetScript, keys,
		"asset-1", "2026-01-01T00:00:00Z", "id", "asset-1", "name", "Drill").Err()
	if err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	err = client.Eval(ctx, upsertAssetScript, keys,
		"asset-1", "2026-06-01T00:00:00Z", "id", "asset-1", "name", "Hammer Drill").Err()
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	data, err := client.HGetAll(ctx, keys[0]).Result()
	if err != nil {
		t.Fatalf("HGETALL failed: %v", err)
	}
	if data["created_at"] != "2026-01-01T00:00:00Z" {
		t.Errorf("Expected original created_at, got %s", data["created_at"])
	}
	if data["name"] != "Hammer Drill" {
		t.Errorf("Expected updated name, got %s", data["name"])
	}

	if ok, _ := mr.SIsMember(keys[1], "asset-1"); !ok {
		t.Error("Expected asset in registry set")
	}
}

func TestPatchAssetScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()
	key := "kp:asset:asset-1"

	if err := client.Eval(ctx, patchAssetScript, []string{key}, "status", "in_use").Err(); !isReply(err, notFoundReply) {
		t.Fatalf("Expected NOTFOUND for missing asset, got %v", err)
	}
	if mr.Exists(key) {
		t.Fatal("Patch must not create a missing asset")
	}

	mr.HSet(key, "id", "asset-1", "status", "available")

	if err := client.Eval(ctx, patchAssetScript, []string{key}, "status", "in_use").Err(); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if got := mr.HGet(key, "status"); got != "in_use" {
		t.Errorf("Expected status in_use, got %s", got)
	}

	mr.HSet(key, "last_used_at", "2026-01-01T00:00:00Z")
	if err := client.Eval(ctx, patchAssetScript, []string{key}, "total_usage_hours", "0", "last_used_at", "").Err(); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if got := mr.HGet(key, "total_usage_hours"); got != "0" {
		t.Errorf("Expected total_usage_hours 0, got %s", got)
	}
	if fields, _ := mr.HKeys(key); slices.Contains(fields, "last_used_at") {
		t.Error("Expected empty value to remove last_used_at")
	}
}
