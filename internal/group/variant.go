package group

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/snarg/ta-engine/internal/speakers"
	"github.com/snarg/ta-engine/internal/transcript"
)

// Identity names a group when the input is more than one transcript.
type Identity struct {
	UUID string
	Name string
	Key  string
}

// Input is the uniform internal representation of what the caller asked to
// analyze: an ordered list of transcript members plus an optional group
// identity. Input shape (single file, explicit list, group directory) is
// resolved exactly once, here; no internal component branches on shape again.
type Input struct {
	Members []speakers.Member
	Group   *Identity
}

// IsGroup reports whether this input carries a group identity.
func (in *Input) IsGroup() bool { return in.Group != nil }

// ResolveInput loads the requested paths into a uniform Input. One path that
// is a directory becomes a group of every *.json inside it (sorted by name);
// one transcript file is a single run; multiple paths are an explicit group.
func ResolveInput(paths []string, groupName string) (*Input, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no transcript paths given")
	}

	files := paths
	if len(paths) == 1 {
		info, err := os.Stat(paths[0])
		if err != nil {
			return nil, fmt.Errorf("stat input: %w", err)
		}
		if info.IsDir() {
			files, err = listTranscripts(paths[0])
			if err != nil {
				return nil, err
			}
			if len(files) == 0 {
				return nil, fmt.Errorf("no transcript files in %s", paths[0])
			}
		}
	}

	members := make([]speakers.Member, 0, len(files))
	for _, f := range files {
		t, err := transcript.Load(f)
		if err != nil {
			return nil, err
		}
		members = append(members, speakers.Member{Path: f, Transcript: t})
	}

	in := &Input{Members: members}
	if len(members) > 1 {
		name := groupName
		if name == "" {
			name = filepath.Base(filepath.Dir(members[0].Path))
		}
		in.Group = &Identity{
			Name: name,
			Key:  groupKey(members),
		}
	}
	return in, nil
}

func listTranscripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read group dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// groupKey derives a stable key from the members' identity hashes. Identity
// hashes exclude speaker labels, so the key survives re-diarization.
func groupKey(members []speakers.Member) string {
	hashes := make([]string, 0, len(members))
	for _, m := range members {
		hashes = append(hashes, transcript.IdentityHash(m.Transcript.Segments))
	}
	sort.Strings(hashes)
	return transcript.HashStrings(hashes)
}
