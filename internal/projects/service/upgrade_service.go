package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/metrics"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/repository"
)

// Upgrader turns a raw state at version v into the shape of version v+1.
// It must set header.version to v+1.
type Upgrader func(raw []byte) ([]byte, error)

// DefaultUpgraders returns the built-in chain keyed by source version.
func DefaultUpgraders() map[int]Upgrader {
	return map[int]Upgrader{
		1: upgradeV1ToV2,
		2: upgradeV2ToV3,
	}
}

// UpgradeService migrates stored project states forward one version at a
// time. It does no locking; callers hold the project lock.
type UpgradeService struct {
	repo    *repository.ProjectRepository
	target  int
	steps   map[int]Upgrader
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewUpgradeService(repo *repository.ProjectRepository, target int, steps map[int]Upgrader, log *zap.Logger, m *metrics.Metrics) *UpgradeService {
	if steps == nil {
		steps = DefaultUpgraders()
	}
	return &UpgradeService{repo: repo, target: target, steps: steps, log: logging.OrNop(log), metrics: m}
}

// Target returns the version projects are upgraded to.
func (u *UpgradeService) Target() int { return u.target }

// StoredVersion reads the version of a project without decoding the state.
// States written before the header carried a version count as version 1.
func (u *UpgradeService) StoredVersion(name string) (int, error) {
	raw, err := u.repo.LoadRawState(name)
	if err != nil {
		return 0, err
	}
	return probeVersion(name, raw)
}

func probeVersion(name string, raw []byte) (int, error) {
	if !gjson.ValidBytes(raw) {
		return 0, domain.NewStorageError("probe version", name, errors.New("state is not valid JSON"))
	}
	v := gjson.GetBytes(raw, "header.version")
	if !v.Exists() {
		return 1, nil
	}
	if v.Type != gjson.Number || v.Float() != float64(v.Int()) || v.Int() < 1 {
		return 0, domain.NewStorageError("probe version", name, fmt.Errorf("bad header version %s", v.Raw))
	}
	return int(v.Int()), nil
}

// Upgrade walks the project from its stored version to the target version,
// persisting after every step. It returns the version it started from.
// A failed step leaves the project at the last version reached.
func (u *UpgradeService) Upgrade(ctx context.Context, name string) (from int, err error) {
	raw, err := u.repo.LoadRawState(name)
	if err != nil {
		return 0, err
	}
	from, err = probeVersion(name, raw)
	if err != nil {
		return 0, err
	}
	if from > u.target {
		return from, &domain.IncompatibleVersionError{Project: name, Stored: from, Expected: u.target}
	}

	current := from
	for current < u.target {
		if err := ctx.Err(); err != nil {
			return from, &domain.UpgradeError{Project: name, From: from, To: u.target, Reached: current, Err: err}
		}
		next, err := u.applyStep(name, raw, current)
		if err != nil {
			return from, &domain.UpgradeError{Project: name, From: from, To: u.target, Reached: current, Err: err}
		}
		if err := u.repo.StoreRawState(name, next); err != nil {
			return from, &domain.UpgradeError{Project: name, From: from, To: u.target, Reached: current, Err: err}
		}
		raw = next
		current++
		u.log.Info("project upgraded", zap.String("project", name), zap.Int("version", current))
	}
	return from, nil
}

// UpgradeRaw runs the chain on a state held in memory, as used for archives
// that are not installed yet. Nothing is persisted.
func (u *UpgradeService) UpgradeRaw(ctx context.Context, name string, raw []byte) ([]byte, int, error) {
	from, err := probeVersion(name, raw)
	if err != nil {
		return nil, 0, err
	}
	if from > u.target {
		return nil, from, &domain.IncompatibleVersionError{Project: name, Stored: from, Expected: u.target}
	}
	for current := from; current < u.target; current++ {
		if err := ctx.Err(); err != nil {
			return nil, from, &domain.UpgradeError{Project: name, From: from, To: u.target, Reached: current, Err: err}
		}
		raw, err = u.applyStep(name, raw, current)
		if err != nil {
			return nil, from, &domain.UpgradeError{Project: name, From: from, To: u.target, Reached: current, Err: err}
		}
	}
	return raw, from, nil
}

func (u *UpgradeService) applyStep(name string, raw []byte, current int) ([]byte, error) {
	step, ok := u.steps[current]
	if !ok {
		return nil, fmt.Errorf("no upgrader from version %d", current)
	}
	next, err := step(raw)
	if err == nil {
		err = checkStepResult(next, current+1)
	}
	u.metrics.UpgradeStep(strconv.Itoa(current), err)
	if err != nil {
		u.log.Warn("upgrade step failed", zap.String("project", name), zap.Int("from", current), zap.Error(err))
		return nil, err
	}
	return next, nil
}

func checkStepResult(raw []byte, want int) error {
	got := gjson.GetBytes(raw, "header.version")
	if got.Type != gjson.Number || got.Int() != int64(want) {
		return fmt.Errorf("step produced version %s, want %d", got.Raw, want)
	}
	return nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if doc == nil {
		return nil, errors.New("state is not an object")
	}
	return doc, nil
}

func headerOf(doc map[string]any) (map[string]any, error) {
	switch h := doc["header"].(type) {
	case nil:
		h2 := map[string]any{}
		doc["header"] = h2
		return h2, nil
	case map[string]any:
		return h, nil
	default:
		return nil, errors.New("header is not an object")
	}
}

// upgradeV1ToV2 moves the legacy top-level start node into the header.
func upgradeV1ToV2(raw []byte) ([]byte, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	header, err := headerOf(doc)
	if err != nil {
		return nil, err
	}

	if legacy := gjson.GetBytes(raw, "startNodeName"); legacy.Exists() {
		if legacy.Type != gjson.String {
			return nil, errors.New("startNodeName is not a string")
		}
		header["startNodeName"] = legacy.String()
		delete(doc, "startNodeName")
	} else if s, _ := header["startNodeName"].(string); s == "" {
		header["startNodeName"] = "start"
	}
	header["version"] = 2
	return json.Marshal(doc)
}

// upgradeV2ToV3 turns the keyed steps object and stepOrder list of each node
// into an ordered steps list.
func upgradeV2ToV3(raw []byte) ([]byte, error) {
	if nodes := gjson.GetBytes(raw, "nodes"); nodes.Exists() && !nodes.IsArray() {
		return nil, errors.New("nodes is not a list")
	}
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	header, err := headerOf(doc)
	if err != nil {
		return nil, err
	}

	nodes, _ := doc["nodes"].([]any)
	for i, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("nodes[%d] is not an object", i)
		}
		steps, err := orderedSteps(node)
		if err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		node["steps"] = steps
		delete(node, "stepOrder")
	}
	if nodes == nil {
		doc["nodes"] = []any{}
	}
	header["version"] = 3
	return json.Marshal(doc)
}

func orderedSteps(node map[string]any) ([]any, error) {
	switch steps := node["steps"].(type) {
	case nil:
		return []any{}, nil
	case []any:
		return steps, nil
	case map[string]any:
		order, err := stepOrder(node, steps)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(order))
		for _, key := range order {
			step, ok := steps[key].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("step %q is missing or not an object", key)
			}
			if name, _ := step["name"].(string); name == "" {
				step["name"] = key
			}
			out = append(out, step)
		}
		return out, nil
	default:
		return nil, errors.New("steps is neither an object nor a list")
	}
}

func stepOrder(node map[string]any, steps map[string]any) ([]string, error) {
	raw, ok := node["stepOrder"]
	if !ok {
		keys := make([]string, 0, len(steps))
		for k := range steps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.New("stepOrder is not a list")
	}
	order := make([]string, 0, len(list))
	seen := map[string]bool{}
	for _, v := range list {
		key, ok := v.(string)
		if !ok || seen[key] {
			return nil, fmt.Errorf("bad stepOrder entry %v", v)
		}
		seen[key] = true
		order = append(order, key)
	}
	if len(order) != len(steps) {
		return nil, fmt.Errorf("stepOrder lists %d steps, node has %d", len(order), len(steps))
	}
	return order, nil
}
