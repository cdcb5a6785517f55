package kvstore

import (
	"context"
	"strconv"
)

// Typed wrappers over Do for the small command set the stores use.

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := c.Do(ctx, OpRead, "GET", key)
	if err != nil {
		return "", false, err
	}
	if res.IsNil() {
		return "", false, nil
	}
	val, err := res.Str()
	return val, err == nil, err
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.Do(ctx, OpWrite, "SET", key, value)
	return err
}

// Del returns how many keys were removed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	cmd := make([]any, 0, len(keys)+1)
	cmd = append(cmd, "DEL")
	for _, k := range keys {
		cmd = append(cmd, k)
	}
	res, err := c.Do(ctx, OpWrite, cmd...)
	if err != nil {
		return 0, err
	}
	return res.Int64()
}

// MGet returns values aligned with keys; missing keys yield "".
func (c *Client) MGet(ctx context.Context, keys ...string) ([]string, error) {
	cmd := make([]any, 0, len(keys)+1)
	cmd = append(cmd, "MGET")
	for _, k := range keys {
		cmd = append(cmd, k)
	}
	res, err := c.Do(ctx, OpRead, cmd...)
	if err != nil {
		return nil, err
	}
	return res.StrSlice()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	res, err := c.Do(ctx, OpRead, "EXISTS", key)
	if err != nil {
		return false, err
	}
	n, err := res.Int64()
	return n > 0, err
}

func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	cmd := make([]any, 0, len(members)+2)
	cmd = append(cmd, "SADD", key)
	for _, m := range members {
		cmd = append(cmd, m)
	}
	_, err := c.Do(ctx, OpWrite, cmd...)
	return err
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	cmd := make([]any, 0, len(members)+2)
	cmd = append(cmd, "SREM", key)
	for _, m := range members {
		cmd = append(cmd, m)
	}
	_, err := c.Do(ctx, OpWrite, cmd...)
	return err
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	res, err := c.Do(ctx, OpRead, "SMEMBERS", key)
	if err != nil {
		return nil, err
	}
	return res.StrSlice()
}

func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	res, err := c.Do(ctx, OpRead, "SCARD", key)
	if err != nil {
		return 0, err
	}
	return res.Int64()
}

// ZAdd inserts one member with an integer score.
func (c *Client) ZAdd(ctx context.Context, key string, score int64, member string) error {
	_, err := c.Do(ctx, OpWrite, "ZADD", key, strconv.FormatInt(score, 10), member)
	return err
}

// ZRevRange returns members newest-first by score in [start, stop].
func (c *Client) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	res, err := c.Do(ctx, OpRead, "ZRANGE", key,
		strconv.FormatInt(start, 10), strconv.FormatInt(stop, 10), "REV")
	if err != nil {
		return nil, err
	}
	return res.StrSlice()
}

// ZRevRangeByScore returns members with scores in [min, max], newest first.
func (c *Client) ZRevRangeByScore(ctx context.Context, key string, maxScore, minScore int64, limit int64) ([]string, error) {
	cmd := []any{"ZRANGE", key,
		strconv.FormatInt(maxScore, 10), strconv.FormatInt(minScore, 10),
		"BYSCORE", "REV"}
	if limit > 0 {
		cmd = append(cmd, "LIMIT", "0", strconv.FormatInt(limit, 10))
	}
	res, err := c.Do(ctx, OpRead, cmd...)
	if err != nil {
		return nil, err
	}
	return res.StrSlice()
}

// ZRemRangeByScore removes members scored in [min, max], returning the count.
func (c *Client) ZRemRangeByScore(ctx context.Context, key string, minScore, maxScore int64) (int64, error) {
	res, err := c.Do(ctx, OpWrite, "ZREMRANGEBYSCORE", key,
		strconv.FormatInt(minScore, 10), strconv.FormatInt(maxScore, 10))
	if err != nil {
		return 0, err
	}
	return res.Int64()
}

func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	res, err := c.Do(ctx, OpRead, "ZCARD", key)
	if err != nil {
		return 0, err
	}
	return res.Int64()
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	_, err := c.Do(ctx, OpWrite, "HINCRBY", key, field, strconv.FormatInt(delta, 10))
	return err
}

// HGetAll returns the hash as a field->value map.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	res, err := c.Do(ctx, OpRead, "HGETALL", key)
	if err != nil {
		return nil, err
	}
	flat, err := res.StrSlice()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out[flat[i]] = flat[i+1]
	}
	return out, nil
}
