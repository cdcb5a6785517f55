// Package kvstoretest runs an in-memory stand-in for the managed
// key-value service's REST API, covering exactly the command subset the
// stores use. Tests flip Down or FailCommand to simulate outages.
package kvstoretest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type Server struct {
	mu      sync.Mutex
	strs    map[string]string
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]int64
	hashes  map[string]map[string]int64
	down    bool
	failing map[string]bool

	srv *httptest.Server
}

// New starts the fake service; callers must Close it.
func New() *Server {
	s := &Server{
		strs:    map[string]string{},
		sets:    map[string]map[string]struct{}{},
		zsets:   map[string]map[string]int64{},
		hashes:  map[string]map[string]int64{},
		failing: map[string]bool{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// SetDown makes every command fail with a 500.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

// FailCommand makes one command (e.g. "SET") fail until cleared.
func (s *Server) FailCommand(name string, fail bool) {
	s.mu.Lock()
	s.failing[strings.ToUpper(name)] = fail
	s.mu.Unlock()
}

// SetString seeds a plain key directly.
func (s *Server) SetString(key, value string) {
	s.mu.Lock()
	s.strs[key] = value
	s.mu.Unlock()
}

// GetString reads a plain key directly.
func (s *Server) GetString(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.strs[key]
	return v, ok
}

// SetMembers returns a set's members for assertions.
func (s *Server) SetMembers(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var cmd []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || len(cmd) == 0 {
		writeError(w, http.StatusBadRequest, "malformed command")
		return
	}
	args := make([]string, len(cmd))
	for i, raw := range cmd {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			// Numeric args arrive unquoted.
			args[i] = string(raw)
			continue
		}
		args[i] = str
	}
	name := strings.ToUpper(args[0])

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		writeError(w, http.StatusInternalServerError, "service down")
		return
	}
	if s.failing[name] {
		writeError(w, http.StatusInternalServerError, "simulated "+name+" failure")
		return
	}

	result, err := s.exec(name, args[1:])
	if err != "" {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}

//nolint:gocyclo // one case per supported command keeps this readable
func (s *Server) exec(name string, args []string) (any, string) {
	switch name {
	case "PING":
		return "PONG", ""
	case "GET":
		if v, ok := s.strs[args[0]]; ok {
			return v, ""
		}
		return nil, ""
	case "SET":
		s.strs[args[0]] = args[1]
		return "OK", ""
	case "DEL":
		n := 0
		for _, key := range args {
			if _, ok := s.strs[key]; ok {
				delete(s.strs, key)
				n++
			}
		}
		return n, ""
	case "EXISTS":
		if _, ok := s.strs[args[0]]; ok {
			return 1, ""
		}
		return 0, ""
	case "MGET":
		out := make([]any, len(args))
		for i, key := range args {
			if v, ok := s.strs[key]; ok {
				out[i] = v
			}
		}
		return out, ""
	case "SADD":
		set, ok := s.sets[args[0]]
		if !ok {
			set = map[string]struct{}{}
			s.sets[args[0]] = set
		}
		n := 0
		for _, m := range args[1:] {
			if _, exists := set[m]; !exists {
				set[m] = struct{}{}
				n++
			}
		}
		return n, ""
	case "SREM":
		n := 0
		for _, m := range args[1:] {
			if _, exists := s.sets[args[0]][m]; exists {
				delete(s.sets[args[0]], m)
				n++
			}
		}
		return n, ""
	case "SMEMBERS":
		members := make([]string, 0, len(s.sets[args[0]]))
		for m := range s.sets[args[0]] {
			members = append(members, m)
		}
		sort.Strings(members)
		return members, ""
	case "SCARD":
		return len(s.sets[args[0]]), ""
	case "ZADD":
		score, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, "invalid score"
		}
		zset, ok := s.zsets[args[0]]
		if !ok {
			zset = map[string]int64{}
			s.zsets[args[0]] = zset
		}
		zset[args[2]] = score
		return 1, ""
	case "ZCARD":
		return len(s.zsets[args[0]]), ""
	case "ZRANGE":
		return s.zrange(args)
	case "ZREMRANGEBYSCORE":
		minScore, _ := strconv.ParseInt(args[1], 10, 64)
		maxScore, _ := strconv.ParseInt(args[2], 10, 64)
		n := 0
		for m, score := range s.zsets[args[0]] {
			if score >= minScore && score <= maxScore {
				delete(s.zsets[args[0]], m)
				n++
			}
		}
		return n, ""
	case "HINCRBY":
		delta, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return nil, "invalid increment"
		}
		hash, ok := s.hashes[args[0]]
		if !ok {
			hash = map[string]int64{}
			s.hashes[args[0]] = hash
		}
		hash[args[1]] += delta
		return hash[args[1]], ""
	case "HGETALL":
		fields := make([]string, 0, len(s.hashes[args[0]]))
		for f := range s.hashes[args[0]] {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		flat := make([]any, 0, len(fields)*2)
		for _, f := range fields {
			flat = append(flat, f, strconv.FormatInt(s.hashes[args[0]][f], 10))
		}
		return flat, ""
	default:
		return nil, "unsupported command " + name
	}
}

type scored struct {
	member string
	score  int64
}

func (s *Server) zrange(args []string) (any, string) {
	key := args[0]
	rest := args[3:]
	byScore := false
	rev := false
	limit := int64(-1)
	for i := 0; i < len(rest); i++ {
		switch strings.ToUpper(rest[i]) {
		case "BYSCORE":
			byScore = true
		case "REV":
			rev = true
		case "LIMIT":
			limit, _ = strconv.ParseInt(rest[i+2], 10, 64)
			i += 2
		}
	}

	members := make([]scored, 0, len(s.zsets[key]))
	for m, score := range s.zsets[key] {
		members = append(members, scored{m, score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			return members[i].score < members[j].score
		}
		return members[i].member < members[j].member
	})

	lo, _ := strconv.ParseInt(args[1], 10, 64)
	hi, _ := strconv.ParseInt(args[2], 10, 64)
	if rev {
		// REV BYSCORE takes (max, min); index ranges address the
		// reversed order directly.
		if byScore {
			lo, hi = hi, lo
		}
		for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
			members[i], members[j] = members[j], members[i]
		}
	}

	out := make([]any, 0, len(members))
	for i, m := range members {
		if byScore {
			if m.score < lo || m.score > hi {
				continue
			}
		} else {
			idx := int64(i)
			if idx < lo || (hi >= 0 && idx > hi) {
				continue
			}
		}
		out = append(out, m.member)
		if limit >= 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, ""
}
