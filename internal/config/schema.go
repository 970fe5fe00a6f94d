package config

// RepoConfig is the per-repository configuration block recognized under
// either a repo-root .github-webhook-server.yaml or the central
// config.yaml's per-repository section (§6 "Configuration").
type RepoConfig struct {
	Tox                      *bool              `yaml:"tox"`
	ToxPythonVersion         *string            `yaml:"tox-python-version"`
	PreCommit                *bool              `yaml:"pre-commit"`
	PyPI                     *PyPIConfig        `yaml:"pypi"`
	Container                *ContainerConfig   `yaml:"container"`
	ConventionalTitle        *bool              `yaml:"conventional-title"`
	MinimumLGTM              *int               `yaml:"minimum-lgtm"`
	VerifiedJob              *bool              `yaml:"verified-job"`
	AutoVerifiedAndMergedUsers []string         `yaml:"auto-verified-and-merged-users"`
	AutoVerifyCherryPickedPRs *bool             `yaml:"auto-verify-cherry-picked-prs"`
	CanBeMergedRequiredLabels []string          `yaml:"can-be-merged-required-labels"`
	SetAutoMergePRs          []string           `yaml:"set-auto-merge-prs"`
	CreateIssueForNewPR      *bool              `yaml:"create-issue-for-new-pr"`
	AllowCommandsOnDraftPRs  []string           `yaml:"allow-commands-on-draft-prs"`
	MaxOwnersFiles           *int               `yaml:"max-owners-files"`
	PRSizeThresholds         map[string]SizeRule `yaml:"pr-size-thresholds"`
	SlackWebhookURL          *string             `yaml:"slack-webhook-url"`
	BranchProtection         map[string]any      `yaml:"branch_protection"`
	ProtectedBranches        map[string]ProtectedBranch `yaml:"protected-branches"`
	DefaultStatusChecks      []string            `yaml:"default-status-checks"`
	CustomCheckRuns          []CustomCheckRun    `yaml:"custom-check-runs"`
	TestOracle               *TestOracleConfig   `yaml:"test-oracle"`
	EnabledLabels            []string            `yaml:"enabled-labels"`
	MaskSensitiveData        *bool               `yaml:"mask-sensitive-data"`
}

type PyPIConfig struct {
	Token string `yaml:"token"`
}

type ContainerConfig struct {
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Repository string   `yaml:"repository"`
	Dockerfile string   `yaml:"dockerfile"`
	Tag        string   `yaml:"tag"`
	BuildArgs  []string `yaml:"build-args"`
	Args       []string `yaml:"args"`
	Release    bool     `yaml:"release"`
}

type SizeRule struct {
	Threshold int    `yaml:"threshold"`
	Color     string `yaml:"color"`
}

type ProtectedBranch struct {
	IncludeRuns []string `yaml:"include-runs"`
	ExcludeRuns []string `yaml:"exclude-runs"`
}

type CustomCheckRun struct {
	Name      string `yaml:"name"`
	Command   string `yaml:"command"`
	Mandatory bool   `yaml:"mandatory"`
	Timeout   int    `yaml:"timeout-seconds"`
}

type TestOracleConfig struct {
	ServerURL    string   `yaml:"server-url"`
	AIProvider   string   `yaml:"ai-provider"`
	AIModel      string   `yaml:"ai-model"`
	Triggers     []string `yaml:"triggers"`
	TestPatterns []string `yaml:"test-patterns"`
}

// FleetConfig is the top-level central config.yaml document: a root
// default block plus one RepoConfig per "org/name" slug, and the
// process-wide fields also recognized at its root (github-app-id,
// github-tokens, webhook-ip, webhook-secret, ip-bind, port, max-workers,
// verify-github-ips, verify-cloudflare-ips, log-level, log-file).
type FleetConfig struct {
	GitHubAppID        int64             `yaml:"github-app-id"`
	GitHubTokens       []string          `yaml:"github-tokens"`
	WebhookIP          string            `yaml:"webhook-ip"`
	WebhookSecret      string            `yaml:"webhook-secret"`
	IPBind             string            `yaml:"ip-bind"`
	Port               int               `yaml:"port"`
	MaxWorkers         int               `yaml:"max-workers"`
	VerifyGitHubIPs    bool              `yaml:"verify-github-ips"`
	VerifyCloudflareIP bool              `yaml:"verify-cloudflare-ips"`
	LogLevel           string            `yaml:"log-level"`
	LogFile            string            `yaml:"log-file"`
	Repositories       map[string]RepoConfig `yaml:"repositories"`

	// Root-level defaults, used when a repository doesn't override a key.
	RepoConfig `yaml:",inline"`
}
