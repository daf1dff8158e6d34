package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// systemScopeArg 命令行中代表系统策略的 scope
const systemScopeArg = "_system"

var policyFlags struct {
	file string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage retention policies",
	Long: `Manage attachment version retention policies.

The system policy is addressed as "_system" (or by omitting the scope);
any other scope is a space key.

Subcommands:
  get    - Print a policy as YAML
  set    - Replace a policy from a YAML file
  delete - Remove a policy (spaces fall back to the system policy)`,
}

var policyGetCmd = &cobra.Command{
	Use:   "get [scope]",
	Short: "Print a policy as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE:  getPolicy,
}

var policySetCmd = &cobra.Command{
	Use:   "set [scope]",
	Short: "Replace a policy from a YAML file",
	Long: `Replace a policy from a YAML file.

Example file:
  mode: scope
  revision_count_rule:
    enabled: true
    max_revisions: 5
  report_only: false
  report_email_address: wiki-admins@example.com

Examples:
  purgectl policy set DOCS --file docs.yaml
  cat system.yaml | purgectl policy set _system --file -`,
	Args: cobra.MaximumNArgs(1),
	RunE: setPolicy,
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete [scope]",
	Short: "Remove a policy",
	Args:  cobra.MaximumNArgs(1),
	RunE:  deletePolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyGetCmd, policySetCmd, policyDeleteCmd)

	policySetCmd.Flags().StringVarP(&policyFlags.file, "file", "f", "", "policy YAML file, - for stdin")
	_ = policySetCmd.MarkFlagRequired("file")
}

// scopeFromArgs 把命令行参数转换为存储使用的 scope key
func scopeFromArgs(args []string) string {
	if len(args) == 0 || args[0] == systemScopeArg {
		return storage.SystemScope
	}
	return args[0]
}

func scopeLabel(scopeKey string) string {
	if scopeKey == storage.SystemScope {
		return systemScopeArg
	}
	return scopeKey
}

// decodePolicy 严格解析 YAML 策略，未知字段视为错误
func decodePolicy(r io.Reader) (*domain.Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p domain.Policy
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("policy file is empty")
		}
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	return &p, nil
}

// encodePolicy 输出 YAML，首行注释标明 scope
func encodePolicy(w io.Writer, scopeKey string, p *domain.Policy) error {
	fmt.Fprintf(w, "# scope: %s\n", scopeLabel(scopeKey))
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}

func getPolicy(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openPolicies()
	if err != nil {
		return err
	}
	defer closeFn()

	scopeKey := scopeFromArgs(args)
	p, err := st.Get(cmd.Context(), scopeKey)
	if err != nil {
		return fmt.Errorf("get policy %s: %w", scopeLabel(scopeKey), err)
	}
	return encodePolicy(cmd.OutOrStdout(), scopeKey, p)
}

func setPolicy(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if policyFlags.file != "-" {
		f, err := os.Open(policyFlags.file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	p, err := decodePolicy(in)
	if err != nil {
		return err
	}

	st, closeFn, err := openPolicies()
	if err != nil {
		return err
	}
	defer closeFn()

	scopeKey := scopeFromArgs(args)
	saved, err := st.Save(cmd.Context(), scopeKey, p)
	if err != nil {
		return fmt.Errorf("save policy %s: %w", scopeLabel(scopeKey), err)
	}
	return encodePolicy(cmd.OutOrStdout(), scopeKey, saved)
}

func deletePolicy(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openPolicies()
	if err != nil {
		return err
	}
	defer closeFn()

	scopeKey := scopeFromArgs(args)
	if err := st.Delete(cmd.Context(), scopeKey); err != nil {
		return fmt.Errorf("delete policy %s: %w", scopeLabel(scopeKey), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "policy %s deleted\n", scopeLabel(scopeKey))
	return nil
}
