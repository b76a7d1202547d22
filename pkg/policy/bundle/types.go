package bundle

// PolicyBundle is the unit of policy and data served to agents for one
// commit, or for the range between two commits.
//
// Every Manifest entry corresponds to exactly one module: a policy module
// with the same path, or the data module keyed by the entry's directory
// when the entry is a data.json file. A complete bundle (empty OldHash)
// never carries DeletedFiles.
type PolicyBundle struct {
	Manifest      []string       `json:"manifest"`
	Hash          string         `json:"hash"`
	OldHash       string         `json:"old_hash,omitempty"`
	DataModules   []DataModule   `json:"data_modules"`
	PolicyModules []PolicyModule `json:"policy_modules"`
	DeletedFiles  *DeletedFiles  `json:"deleted_files,omitempty"`
}

// IsDiff reports whether the bundle describes a commit range.
func (b *PolicyBundle) IsDiff() bool {
	return b.OldHash != ""
}

// DataModule is a data.json document. Path is the directory holding it,
// which is also where the document is mounted in the data tree.
type DataModule struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

// PolicyModule is a policy source file.
type PolicyModule struct {
	Path        string `json:"path"`
	PackageName string `json:"package_name"`
	Rego        string `json:"rego"`
}

// DeletedFiles lists what a diff bundle removes. PolicyModules is ordered so
// that dependents are removed before their dependencies.
type DeletedFiles struct {
	DataModules   []string `json:"data_modules"`
	PolicyModules []string `json:"policy_modules"`
}
