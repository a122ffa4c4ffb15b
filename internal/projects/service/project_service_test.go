package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/metrics"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/repository"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/workspace"
)

func newTestService(t *testing.T, dir string, version int) (*ProjectService, *repository.ProjectRepository) {
	t.Helper()
	ws, err := workspace.New(dir)
	require.NoError(t, err)
	repo := repository.NewProjectRepository(ws)
	return NewProjectService(repo, Options{Version: version}), repo
}

func stateJSON(t *testing.T, state *domain.ProjectState) []byte {
	t.Helper()
	b, err := json.Marshal(state)
	require.NoError(t, err)
	return b
}

func assertNoInternalEntries(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() == workspace.LocksDir {
			continue
		}
		assert.False(t, strings.HasPrefix(e.Name(), "."), "left behind %s", e.Name())
	}
}

func TestCreateProject(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, t.TempDir(), DefaultVersion)

	state, err := svc.CreateProject(ctx, "ivr-demo", "", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.KindVoice, state.Header.ProjectKind)

	header, err := repo.LoadHeader("ivr-demo")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, header.Version)
	assert.Equal(t, "alice", header.Owner)

	m, err := svc.Builder().LoadManifest("ivr-demo")
	require.NoError(t, err)
	assert.Equal(t, "ivr-demo", m.Project)
	assert.Equal(t, DefaultVersion, m.Version)
	assert.Contains(t, m.Nodes, header.StartNodeName)

	t.Run("name already in use", func(t *testing.T) {
		before, err := repo.LoadRawState("ivr-demo")
		require.NoError(t, err)

		_, err = svc.CreateProject(ctx, "ivr-demo", domain.KindSMS, "bob")
		assert.ErrorIs(t, err, domain.ErrProjectAlreadyExists)

		after, err := repo.LoadRawState("ivr-demo")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := svc.CreateProject(ctx, "fax-app", "fax", "alice")
		assert.ErrorIs(t, err, domain.ErrInvalidServiceParameters)
		assert.False(t, repo.Exists("fax-app"))
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := svc.CreateProject(ctx, "../escape", "", "alice")
		assert.ErrorIs(t, err, domain.ErrInvalidProjectName)
	})

	assertNoInternalEntries(t, repo.Workspace().BasePath())
}

func TestUpgradeScenario(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v1, repo := newTestService(t, dir, 1)
	_, err := v1.CreateProject(ctx, "ivr-demo", domain.KindVoice, "")
	require.NoError(t, err)

	header, err := repo.LoadHeader("ivr-demo")
	require.NoError(t, err)
	require.Equal(t, 1, header.Version)

	v2, _ := newTestService(t, dir, 2)
	from, err := v2.UpgradeProject(ctx, "anyone", "ivr-demo")
	require.NoError(t, err)
	assert.Equal(t, 1, from)

	header, err = repo.LoadHeader("ivr-demo")
	require.NoError(t, err)
	assert.Equal(t, 2, header.Version)

	m, err := v2.Builder().LoadManifest("ivr-demo")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Version)

	t.Run("update refused before upgrade", func(t *testing.T) {
		_, err := v1.CreateProject(ctx, "old", domain.KindVoice, "")
		require.NoError(t, err)
		state, err := repo.LoadProject("old")
		require.NoError(t, err)

		err = v2.UpdateProject(ctx, "", "old", stateJSON(t, state))
		assert.ErrorIs(t, err, domain.ErrIncompatibleProjectVersion)
	})

	t.Run("project newer than the service", func(t *testing.T) {
		_, err := v1.UpgradeProject(ctx, "", "ivr-demo")
		var iv *domain.IncompatibleVersionError
		require.ErrorAs(t, err, &iv)
		assert.Equal(t, 2, iv.Stored)
		assert.Equal(t, 1, iv.Expected)
	})
}

func TestUpgradeLegacyState(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, t.TempDir(), DefaultVersion)
	_, err := svc.CreateProject(ctx, "legacy", domain.KindVoice, "")
	require.NoError(t, err)

	legacy := `{
		"startNodeName": "main",
		"header": {"projectKind": "voice", "version": 1},
		"nodes": [{
			"name": "main",
			"label": "Main",
			"steps": {
				"s2": {"kind": "hungup", "name": "s2"},
				"s1": {"kind": "say", "config": {"phrase": "hi"}}
			},
			"stepOrder": ["s1", "s2"]
		}]
	}`
	require.NoError(t, repo.StoreRawState("legacy", []byte(legacy)))

	from, err := svc.UpgradeProject(ctx, "", "legacy")
	require.NoError(t, err)
	assert.Equal(t, 1, from)

	state, err := repo.LoadProject("legacy")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, state.Header.Version)
	assert.Equal(t, "main", state.Header.StartNodeName)
	require.Len(t, state.Nodes, 1)
	require.Len(t, state.Nodes[0].Steps, 2)
	assert.Equal(t, "s1", state.Nodes[0].Steps[0].Name)
	assert.Equal(t, "say", state.Nodes[0].Steps[0].Kind)
	assert.Equal(t, "s2", state.Nodes[0].Steps[1].Name)

	raw, err := repo.LoadRawState("legacy")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "stepOrder")

	m, err := svc.Builder().LoadManifest("legacy")
	require.NoError(t, err)
	assert.Equal(t, "main", m.StartNode)
}

func TestUpgradeStopsAtFailedStep(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v1, repo := newTestService(t, dir, 1)
	_, err := v1.CreateProject(ctx, "p", domain.KindVoice, "")
	require.NoError(t, err)

	ws, err := workspace.New(dir)
	require.NoError(t, err)
	broken := NewProjectService(repository.NewProjectRepository(ws), Options{
		Version: 3,
		Upgraders: map[int]Upgrader{
			1: upgradeV1ToV2,
			2: func([]byte) ([]byte, error) { return nil, assert.AnError },
		},
	})

	_, err = broken.UpgradeProject(ctx, "", "p")
	var ue *domain.UpgradeError
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, domain.ErrUpgrade)
	assert.Equal(t, 1, ue.From)
	assert.Equal(t, 3, ue.To)
	assert.Equal(t, 2, ue.Reached)

	header, err := repo.LoadHeader("p")
	require.NoError(t, err)
	assert.Equal(t, 2, header.Version)
}

func TestUnauthorizedMutationsChangeNothing(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, t.TempDir(), DefaultVersion)
	_, err := svc.CreateProject(ctx, "owned", domain.KindVoice, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.SaveSettings(ctx, "alice", "owned", &domain.ProjectSettings{Logging: true}))

	before, err := repo.LoadRawState("owned")
	require.NoError(t, err)
	state, err := repo.LoadProject("owned")
	require.NoError(t, err)
	state.Nodes[0].Label = "hacked"
	payload := stateJSON(t, state)

	ops := map[string]func() error{
		"update": func() error { return svc.UpdateProject(ctx, "mallory", "owned", payload) },
		"rename": func() error { return svc.RenameProject(ctx, "mallory", "owned", "stolen") },
		"delete": func() error { return svc.DeleteProject(ctx, "mallory", "owned") },
		"upgrade": func() error {
			_, err := svc.UpgradeProject(ctx, "mallory", "owned")
			return err
		},
		"build": func() error {
			_, err := svc.BuildProject(ctx, "mallory", "owned")
			return err
		},
		"archive": func() error { return svc.ArchiveProject(ctx, "mallory", "owned", &bytes.Buffer{}) },
		"add wav": func() error {
			_, err := svc.AddWav(ctx, "mallory", "owned", "x.wav", strings.NewReader("RIFF"))
			return err
		},
		"remove wav": func() error { return svc.RemoveWav(ctx, "mallory", "owned", "x.wav") },
		"settings": func() error {
			return svc.SaveSettings(ctx, "mallory", "owned", &domain.ProjectSettings{})
		},
		"cc": func() error { return svc.SaveCallControl(ctx, "mallory", "owned", nil) },
		"load": func() error {
			_, err := svc.LoadProject(ctx, "mallory", "owned")
			return err
		},
		"list wavs": func() error {
			_, err := svc.ListWavs(ctx, "mallory", "owned")
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), domain.ErrUnauthorized)
		})
	}

	after, err := repo.LoadRawState("owned")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, repo.Exists("stolen"))

	settings, err := repo.LoadSettings("owned")
	require.NoError(t, err)
	assert.True(t, settings.Logging)

	wavs, err := repo.ListWavs("owned")
	require.NoError(t, err)
	assert.Empty(t, wavs)
}

func TestExistenceIsCheckedBeforeOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, t.TempDir(), DefaultVersion)

	_, err := svc.LoadProject(ctx, "mallory", "ghost")
	assert.ErrorIs(t, err, domain.ErrProjectDoesNotExist)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.LoadProjectInfo(ctx, "mallory", "ghost")
	assert.ErrorIs(t, err, domain.ErrProjectDoesNotExist)
}

func TestUpdateProject(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, t.TempDir(), DefaultVersion)
	_, err := svc.CreateProject(ctx, "p", domain.KindVoice, "alice")
	require.NoError(t, err)

	t.Run("valid update keeps stored header", func(t *testing.T) {
		state, err := repo.LoadProject("p")
		require.NoError(t, err)
		state.Nodes = append(state.Nodes, domain.Node{
			Name:  "menu",
			Label: "Menu",
			Steps: []domain.Step{{Kind: "gather", Name: "step2"}},
		})
		state.Header.Owner = "bob"
		state.Header.ProjectKind = domain.KindSMS
		state.Header.Version = 99

		require.NoError(t, svc.UpdateProject(ctx, "alice", "p", stateJSON(t, state)))

		got, err := repo.LoadProject("p")
		require.NoError(t, err)
		assert.Len(t, got.Nodes, 2)
		assert.Equal(t, "alice", got.Header.Owner)
		assert.Equal(t, domain.KindVoice, got.Header.ProjectKind)
		assert.Equal(t, DefaultVersion, got.Header.Version)

		m, err := svc.Builder().LoadManifest("p")
		require.NoError(t, err)
		assert.Equal(t, []string{"start", "menu"}, m.Nodes)
	})

	t.Run("invalid state is rejected", func(t *testing.T) {
		before, err := repo.LoadRawState("p")
		require.NoError(t, err)

		state, err := repo.LoadProject("p")
		require.NoError(t, err)
		state.Header.StartNodeName = "nowhere"
		state.Nodes[0].Steps = append(state.Nodes[0].Steps, domain.Step{Kind: "ussdSay", Name: ""})

		err = svc.UpdateProject(ctx, "alice", "p", stateJSON(t, state))
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.GreaterOrEqual(t, len(ve.Items), 3)

		after, err := repo.LoadRawState("p")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("malformed payload", func(t *testing.T) {
		err := svc.UpdateProject(ctx, "alice", "p", []byte("{nope"))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("concurrent updates", func(t *testing.T) {
		base, err := repo.LoadProject("p")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				st := *base
				st.Nodes = append([]domain.Node(nil), base.Nodes...)
				st.Nodes[0].Label = strings.Repeat("x", i+1)
				errs <- svc.UpdateProject(ctx, "alice", "p", stateJSON(t, &st))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		_, err = repo.LoadProject("p")
		assert.NoError(t, err)
	})
}

func TestRenameProject(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, t.TempDir(), DefaultVersion)
	_, err := svc.CreateProject(ctx, "a", domain.KindVoice, "alice")
	require.NoError(t, err)
	_, err = svc.CreateProject(ctx, "b", domain.KindVoice, "alice")
	require.NoError(t, err)

	err = svc.RenameProject(ctx, "alice", "a", "b")
	assert.ErrorIs(t, err, domain.ErrProjectDirectoryAlreadyExists)

	require.NoError(t, svc.RenameProject(ctx, "alice", "a", "c"))
	assert.False(t, repo.Exists("a"))

	m, err := svc.Builder().LoadManifest("c")
	require.NoError(t, err)
	assert.Equal(t, "c", m.Project)

	err = svc.RenameProject(ctx, "alice", "ghost", "d")
	assert.ErrorIs(t, err, domain.ErrProjectDoesNotExist)
}

func TestDeleteTwice(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, t.TempDir(), DefaultVersion)
	_, err := svc.CreateProject(ctx, "p", domain.KindVoice, "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProject(ctx, "", "p"))
	err = svc.DeleteProject(ctx, "", "p")
	assert.ErrorIs(t, err, domain.ErrProjectDoesNotExist)
	assertNoInternalEntries(t, repo.Workspace().BasePath())
}

func TestWavScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, t.TempDir(), DefaultVersion)
	_, err := svc.CreateProject(ctx, "ivr-demo", domain.KindVoice, "")
	require.NoError(t, err)

	item, err := svc.AddWav(ctx, "", "ivr-demo", "greeting.wav", strings.NewReader("RIFF0000WAVE"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), item.Size)

	items, err := svc.ListWavs(ctx, "", "ivr-demo")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "greeting.wav", items[0].Filename)

	f, err := svc.OpenWav(ctx, "ivr-demo", "greeting.wav")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, svc.RemoveWav(ctx, "", "ivr-demo", "greeting.wav"))
	err = svc.RemoveWav(ctx, "", "ivr-demo", "greeting.wav")
	assert.ErrorIs(t, err, domain.ErrWavItemDoesNotExist)
}

func TestListProjects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, t.TempDir(), DefaultVersion)
	for name, owner := range map[string]string{"alice-app": "alice", "bob-app": "bob", "shared": ""} {
		_, err := svc.CreateProject(ctx, name, domain.KindVoice, owner)
		require.NoError(t, err)
	}

	items, err := svc.ListProjects(ctx, "alice")
	require.NoError(t, err)
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"alice-app", "shared"}, names)
}

func TestSettingsAndCallControl(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, t.TempDir(), DefaultVersion)
	_, err := svc.CreateProject(ctx, "p", domain.KindUSSD, "alice")
	require.NoError(t, err)

	_, err = svc.GetSettings(ctx, "alice", "p")
	assert.ErrorIs(t, err, domain.ErrStorageEntityNotFound)

	require.NoError(t, svc.SaveSettings(ctx, "alice", "p", &domain.ProjectSettings{UssdMaxLength: 160}))
	s, err := svc.GetSettings(ctx, "alice", "p")
	require.NoError(t, err)
	assert.Equal(t, 160, s.UssdMaxLength)

	info := &domain.CallControlInfo{Lanes: []domain.CallControlLane{{StartPoint: domain.CallControlStartPoint{RcmlURL: "http://cc/app"}}}}
	require.NoError(t, svc.SaveCallControl(ctx, "alice", "p", info))
	got, err := svc.GetCallControl(ctx, "alice", "p")
	require.NoError(t, err)
	assert.Equal(t, "http://cc/app", got.Lanes[0].StartPoint.RcmlURL)

	require.NoError(t, svc.SaveCallControl(ctx, "alice", "p", nil))
	_, err = svc.GetCallControl(ctx, "alice", "p")
	assert.ErrorIs(t, err, domain.ErrStorageEntityNotFound)
}

func TestArchiveImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestService(t, t.TempDir(), DefaultVersion)
	_, err := src.CreateProject(ctx, "ivr-demo", domain.KindVoice, "alice")
	require.NoError(t, err)
	require.NoError(t, src.SaveSettings(ctx, "alice", "ivr-demo", &domain.ProjectSettings{Logging: true, LoggingRCML: true}))
	_, err = src.AddWav(ctx, "alice", "ivr-demo", "greeting.wav", strings.NewReader("RIFF"))
	require.NoError(t, err)
	_, err = src.AddWav(ctx, "alice", "ivr-demo", "bye.wav", strings.NewReader("RIFFRIFF"))
	require.NoError(t, err)

	var archive bytes.Buffer
	require.NoError(t, src.ArchiveProject(ctx, "alice", "ivr-demo", &archive))

	dstDir := t.TempDir()
	dst, dstRepo := newTestService(t, dstDir, DefaultVersion)
	name, err := dst.ImportProjectFromArchive(ctx, "bob", bytes.NewReader(archive.Bytes()), "ivr-demo.zip")
	require.NoError(t, err)
	assert.Equal(t, "ivr-demo", name)

	settings, err := dst.GetSettings(ctx, "bob", name)
	require.NoError(t, err)
	assert.True(t, settings.Logging)
	assert.True(t, settings.LoggingRCML)

	wavs, err := dst.ListWavs(ctx, "bob", name)
	require.NoError(t, err)
	require.Len(t, wavs, 2)
	assert.Equal(t, "bye.wav", wavs[0].Filename)
	assert.Equal(t, "greeting.wav", wavs[1].Filename)

	header, err := dstRepo.LoadHeader(name)
	require.NoError(t, err)
	assert.Equal(t, "bob", header.Owner)

	_, err = dst.Builder().LoadManifest(name)
	require.NoError(t, err)

	t.Run("name collision", func(t *testing.T) {
		again, err := dst.ImportProjectFromArchive(ctx, "bob", bytes.NewReader(archive.Bytes()), "ivr-demo.zip")
		require.NoError(t, err)
		assert.Equal(t, "ivr-demo-1", again)
	})

	t.Run("malformed archive leaves nothing behind", func(t *testing.T) {
		_, err := dst.ImportProjectFromArchive(ctx, "bob", strings.NewReader("not a zip"), "junk.zip")
		assert.ErrorIs(t, err, domain.ErrStorage)
		assert.False(t, dstRepo.Exists("junk"))
		assertNoInternalEntries(t, dstDir)
	})
}

func TestImportUpgradesOlderArchive(t *testing.T) {
	ctx := context.Background()
	old, _ := newTestService(t, t.TempDir(), 1)
	_, err := old.CreateProject(ctx, "legacy", domain.KindVoice, "")
	require.NoError(t, err)
	var archive bytes.Buffer
	require.NoError(t, old.ArchiveProject(ctx, "", "legacy", &archive))

	svc, repo := newTestService(t, t.TempDir(), DefaultVersion)
	name, err := svc.ImportProjectFromArchive(ctx, "", &archive, "legacy.zip")
	require.NoError(t, err)

	header, err := repo.LoadHeader(name)
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, header.Version)
}

func TestImportName(t *testing.T) {
	cases := map[string]string{
		"ivr-demo.zip":         "ivr-demo",
		"IVR Demo.ZIP":         "IVR Demo",
		"C:\\tmp\\app.zip":     "app",
		"../../etc/passwd.zip": "passwd",
		"weird*name?.zip":      "weird-name-",
		".zip":                 defaultImportName,
		"":                     defaultImportName,
		"...":                  defaultImportName,
	}
	for in, want := range cases {
		assert.Equal(t, want, ImportName(in), in)
	}
}

func TestBuildRefusesOtherVersions(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, t.TempDir(), DefaultVersion)
	_, err := svc.CreateProject(ctx, "p", domain.KindVoice, "")
	require.NoError(t, err)

	state, err := repo.LoadProject("p")
	require.NoError(t, err)
	state.Header.Version = 1
	_, err = svc.Builder().BuildProject(ctx, "p", state)
	assert.ErrorIs(t, err, domain.ErrIncompatibleProjectVersion)

	dir, err := repo.Dir("p")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, workspace.BuildDir, ManifestFile))
	assert.NoError(t, err, "previous artifact must survive")
}

func TestCreateProjectRollsBackFailedBuild(t *testing.T) {
	dir := t.TempDir()
	svc, repo := newTestService(t, dir, DefaultVersion)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.CreateProject(cancelled, "ivr-demo", domain.KindVoice, "alice")
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, repo.Exists("ivr-demo"))
	assertNoInternalEntries(t, dir)

	_, err = svc.CreateProject(context.Background(), "ivr-demo", domain.KindVoice, "alice")
	require.NoError(t, err)
}

func stateArchive(t *testing.T, state string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("p/state")
	require.NoError(t, err)
	_, err = w.Write([]byte(state))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestImportRejectsInvalidState(t *testing.T) {
	ctx := context.Background()
	states := map[string]string{
		"array":          `[]`,
		"null":           `null`,
		"header only":    `{"header":{"version":3}}`,
		"scalar header":  `{"header":"x"}`,
		"keyed nodes v2": `{"header":{"version":2},"nodes":{"a":{}}}`,
	}
	for name, state := range states {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			svc, repo := newTestService(t, dir, DefaultVersion)

			_, err := svc.ImportProjectFromArchive(ctx, "bob", bytes.NewReader(stateArchive(t, state)), "p.zip")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrStorage)
			assert.ErrorIs(t, err, repository.ErrMalformedArchive)
			assert.NotErrorIs(t, err, domain.ErrUpgrade)

			var verr *domain.ValidationError
			assert.False(t, errors.As(err, &verr))
			assert.False(t, repo.Exists("p"))
			assertNoInternalEntries(t, dir)
		})
	}

	t.Run("newer version", func(t *testing.T) {
		svc, _ := newTestService(t, t.TempDir(), DefaultVersion)
		_, err := svc.ImportProjectFromArchive(ctx, "bob", bytes.NewReader(stateArchive(t, `{"header":{"version":99}}`)), "p.zip")
		assert.ErrorIs(t, err, domain.ErrIncompatibleProjectVersion)
	})
}

func TestConcurrentBuildsShareOneBuild(t *testing.T) {
	ctx := context.Background()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	svc := NewProjectService(repository.NewProjectRepository(ws), Options{Metrics: m})
	_, err = svc.CreateProject(ctx, "ivr-demo", domain.KindVoice, "alice")
	require.NoError(t, err)

	// Holding the project lock keeps the first build in flight while the
	// others arrive.
	unlock, err := ws.Lock("ivr-demo")
	require.NoError(t, err)

	const callers = 5
	manifests := make([]*Manifest, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			manifests[i], errs[i] = svc.BuildProject(ctx, "alice", "ivr-demo")
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	unlock()
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, manifests[0], manifests[i])
	}
	assert.Equal(t, float64(callers), testutil.ToFloat64(m.BuildsShared))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("create", "ok")))
}

func TestLockSpansServicesOnOneWorkspace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	api, apiRepo := newTestService(t, dir, DefaultVersion)
	cli, _ := newTestService(t, dir, DefaultVersion)
	_, err := api.CreateProject(ctx, "ivr-demo", domain.KindVoice, "alice")
	require.NoError(t, err)

	unlock, err := apiRepo.Workspace().Lock("ivr-demo")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- cli.DeleteProject(ctx, "alice", "ivr-demo") }()

	select {
	case err := <-done:
		t.Fatalf("delete ran while the project was locked: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, apiRepo.Exists("ivr-demo"))

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("delete never acquired the lock")
	}
	assert.False(t, apiRepo.Exists("ivr-demo"))
}
