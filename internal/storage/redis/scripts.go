package redis

// Scripts reply with these errors so callers can map them to storage sentinels.
const (
	conflictReply = "CONFLICT"
	notFoundReply = "NOTFOUND"
)

const (
	// writeSessionScript atomically writes a session and its indexes
	writeSessionScript = `
local session_key = KEYS[1]     -- {prefix}:session:{sessionID}
local live_set = KEYS[2]        -- {prefix}:sessions:live
local asset_live = KEYS[3]      -- {prefix}:asset-live:{assetID}
local asset_sessions = KEYS[4]  -- {prefix}:asset-sessions:{assetID}

local mode = ARGV[1]            -- "insert" or "replace"
local session_id = ARGV[2]
local live = ARGV[3]
local score = ARGV[4]

local exists = redis.call('EXISTS', session_key)
if mode == 'insert' and exists == 1 then
  return redis.error_reply('CONFLICT')
end
if mode == 'replace' and exists == 0 then
  return redis.error_reply('CONFLICT')
end

-- At most one live session per asset
local current = redis.call('GET', asset_live)
if live == '1' and current and current ~= session_id then
  return redis.error_reply('CONFLICT')
end

-- Rewrite the hash so cleared optional fields disappear
redis.call('DEL', session_key)
redis.call('HSET', session_key, unpack(ARGV, 5))
redis.call('ZADD', asset_sessions, score, session_id)

if live == '1' then
  redis.call('SADD', live_set, session_id)
  redis.call('SET', asset_live, session_id)
else
  redis.call('SREM', live_set, session_id)
  if current == session_id then
    redis.call('DEL', asset_live)
  end
end

return 'OK'
`

	// deleteSessionScript atomically removes a session and its indexes
	deleteSessionScript = `
local session_key = KEYS[1]
local live_set = KEYS[2]
local asset_live = KEYS[3]
local asset_sessions = KEYS[4]

local session_id = ARGV[1]

if redis.call('EXISTS', session_key) == 0 then
  return redis.error_reply('NOTFOUND')
end

redis.call('DEL', session_key)
redis.call('SREM', live_set, session_id)
redis.call('ZREM', asset_sessions, session_id)
if redis.call('GET', asset_live) == session_id then
  redis.call('DEL', asset_live)
end

return 'OK'
`

	// upsertAssetScript creates or updates an asset, keeping its original created_at
	upsertAssetScript = `
local asset_key = KEYS[1]   -- {prefix}:asset:{assetID}
local assets_set = KEYS[2]  -- {prefix}:assets

local asset_id = ARGV[1]
local created_at = ARGV[2]

local existing_created = redis.call('HGET', asset_key, 'created_at')
if existing_created then
  created_at = existing_created
end

redis.call('DEL', asset_key)
redis.call('HSET', asset_key, 'created_at', created_at, unpack(ARGV, 3))
redis.call('SADD', assets_set, asset_id)

return 'OK'
`

	// patchAssetScript updates fields of an existing asset only. An empty
	// value removes the field.
	patchAssetScript = `
local asset_key = KEYS[1]

if redis.call('EXISTS', asset_key) == 0 then
  return redis.error_reply('NOTFOUND')
end

for i = 1, #ARGV, 2 do
  if ARGV[i + 1] == '' then
    redis.call('HDEL', asset_key, ARGV[i])
  else
    redis.call('HSET', asset_key, ARGV[i], ARGV[i + 1])
  end
end

return 'OK'
`
)
