package session

import "github.com/redis/go-redis/v9"

const (
	rotateStatusNotFound int64 = 0
	rotateStatusInactive int64 = 1
	rotateStatusStale    int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 5
)

// luaPrelude holds helpers shared by every script. Offsets follow the
// layouts written by EncodeRecord and EncodeFamily.
const luaPrelude = `
local function read_be64(s, i)
  local n = 0
  for k = i, i + 7 do
    local b = string.byte(s, k)
    if not b then
      return nil
    end
    n = n * 256 + b
  end
  return n
end

local function write_be64(n)
  local out = {}
  for k = 8, 1, -1 do
    out[k] = string.char(n % 256)
    n = math.floor(n / 256)
  end
  return table.concat(out)
end

local function with_status(data, status)
  return string.sub(data, 1, 1) .. string.char(status) .. string.sub(data, 3)
end

local function rewrite(key, data)
  local pttl = redis.call("PTTL", key)
  if pttl > 0 then
    redis.call("SET", key, data, "PX", pttl)
  else
    redis.call("SET", key, data)
  end
end

local function extend(key, ttl)
  if redis.call("PTTL", key) < ttl then
    redis.call("PEXPIRE", key, ttl)
  end
end

local function record_access(data)
  if #data < 27 then
    return nil, nil
  end
  local idx = 27
  local plen = string.byte(data, idx)
  idx = idx + 1 + plen
  local flen = string.byte(data, idx)
  if not flen then
    return nil, nil
  end
  local family = string.sub(data, idx + 1, idx + flen)
  idx = idx + 1 + flen
  local alen = string.byte(data, idx)
  if not alen or #data < idx + alen then
    return nil, family
  end
  return string.sub(data, idx + 1, idx + alen), family
end

local function deny_access(data, deny_prefix, now, retention, denial)
  local access_jti = record_access(data)
  local access_exp = read_be64(data, 19)
  if access_jti and access_jti ~= "" and access_exp and access_exp > now then
    redis.call("SET", deny_prefix .. access_jti, denial, "PX", retention, "NX")
  end
end
`

// KEYS: presented record, family, members, next record, principal index.
// ARGV: presented jti, next jti, next record blob, ttl ms, now (unix s).
const rotateScript = luaPrelude + `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
if #data < 27 then
  return {5}
end

local status = string.byte(data, 2)
if status ~= 1 then
  return {1, status}
end
rewrite(KEYS[1], with_status(data, 2))

local fam = redis.call("GET", KEYS[2])
if not fam or #fam < 27 then
  return {2}
end
if string.byte(fam, 2) ~= 1 then
  return {2}
end
local cur_len = string.byte(fam, 27)
local current = string.sub(fam, 28, 27 + cur_len)
if current ~= ARGV[1] then
  return {2}
end

local ttl = tonumber(ARGV[4])
local now = tonumber(ARGV[5])
local gen = read_be64(fam, 3)
local updated = string.sub(fam, 1, 2) .. write_be64(gen + 1) .. string.sub(fam, 11, 18) ..
  write_be64(now) .. string.char(#ARGV[2]) .. ARGV[2] .. string.sub(fam, 28 + cur_len)

redis.call("SET", KEYS[4], ARGV[3], "PX", ttl)

local fttl = redis.call("PTTL", KEYS[2])
if fttl < ttl then
  fttl = ttl
end
redis.call("SET", KEYS[2], updated, "PX", fttl)

redis.call("SADD", KEYS[3], ARGV[2])
extend(KEYS[3], ttl)
extend(KEYS[5], ttl)

return {3, updated}
`

// KEYS: family, members, principal index.
// ARGV: record key prefix, deny key prefix, family id, now (unix s),
// deny retention ms, denial blob.
const revokeFamilyScript = luaPrelude + `
local now = tonumber(ARGV[4])
local retention = tonumber(ARGV[5])
local revoked = 0

local members = redis.call("SMEMBERS", KEYS[2])
for _, jti in ipairs(members) do
  local key = ARGV[1] .. jti
  local data = redis.call("GET", key)
  if data and #data >= 27 then
    if string.byte(data, 2) == 1 then
      rewrite(key, with_status(data, 3))
      revoked = revoked + 1
    end
    deny_access(data, ARGV[2], now, retention, ARGV[6])
  end
end

local changed = 0
local fam = redis.call("GET", KEYS[1])
if fam and #fam >= 2 and string.byte(fam, 2) ~= 2 then
  rewrite(KEYS[1], with_status(fam, 2))
  changed = 1
end
redis.call("SREM", KEYS[3], ARGV[3])

return {revoked, changed}
`

// KEYS: record.
// ARGV: deny key prefix, now (unix s), deny retention ms, denial blob.
const revokeTokenScript = luaPrelude + `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0, 0, ""}
end
if #data < 27 then
  return {5, 0, ""}
end

local changed = 0
if string.byte(data, 2) == 1 then
  rewrite(KEYS[1], with_status(data, 3))
  changed = 1
end
deny_access(data, ARGV[1], tonumber(ARGV[2]), tonumber(ARGV[3]), ARGV[4])

local _, family = record_access(data)
return {1, changed, family or ""}
`

var (
	rotateLua       = redis.NewScript(rotateScript)
	revokeFamilyLua = redis.NewScript(revokeFamilyScript)
	revokeTokenLua  = redis.NewScript(revokeTokenScript)
)
