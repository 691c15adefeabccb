// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cmdline ties cobra commands and pflag flags together with
// environment variable binding.
package cmdline

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// CommandManager holds the command tree and the flags registered for
// each command.
type CommandManager struct {
	rootCmd *cobra.Command
	flags   map[string]*Flag
	// flagsForCmd records which flags each command carries so the
	// environment pass can walk them.
	flagsForCmd map[*cobra.Command][]*Flag
}

// NewCommandManager instantiates a manager for the root command.
func NewCommandManager(rootCmd *cobra.Command) *CommandManager {
	if rootCmd == nil {
		panic("nil root command passed to NewCommandManager")
	}
	return &CommandManager{
		rootCmd:     rootCmd,
		flags:       make(map[string]*Flag),
		flagsForCmd: make(map[*cobra.Command][]*Flag),
	}
}

// RootCmd returns the root command.
func (m *CommandManager) RootCmd() *cobra.Command {
	return m.rootCmd
}

// RegisterCmd registers a command as a direct child of the root
// command.
func (m *CommandManager) RegisterCmd(cmd *cobra.Command) {
	m.rootCmd.AddCommand(cmd)
}

// RegisterSubCmd adds a child command below a previously registered
// parent.
func (m *CommandManager) RegisterSubCmd(parentCmd, childCmd *cobra.Command) {
	parentCmd.AddCommand(childCmd)
}

// RegisterFlagForCmd registers a flag for one or more commands.
func (m *CommandManager) RegisterFlagForCmd(flag *Flag, cmds ...*cobra.Command) {
	if flag == nil {
		panic("nil flag passed to RegisterFlagForCmd")
	}
	if len(cmds) == 0 {
		panic(fmt.Sprintf("flag %s registered for no command", flag.Name))
	}

	for _, cmd := range cmds {
		if err := flag.register(cmd.Flags()); err != nil {
			panic(fmt.Sprintf("while registering flag %s: %s", flag.Name, err))
		}
		m.flagsForCmd[cmd] = append(m.flagsForCmd[cmd], flag)
	}
	m.flags[flag.ID] = flag
}

// UpdateCmdFlagFromEnv sets any unset flags of cmd from their
// environment keys, each prefixed with envPrefix.
func (m *CommandManager) UpdateCmdFlagFromEnv(cmd *cobra.Command, envPrefix string) error {
	var retErr error
	for _, flag := range m.flagsForCmd[cmd] {
		pf := cmd.Flags().Lookup(flag.Name)
		if pf == nil || pf.Changed {
			continue
		}
		for _, key := range flag.EnvKeys {
			val, ok := os.LookupEnv(envPrefix + key)
			if !ok {
				continue
			}
			vblog.Debugf("Taking flag --%s from %s%s", flag.Name, envPrefix, key)
			if err := cmd.Flags().Set(flag.Name, val); err != nil && retErr == nil {
				retErr = fmt.Errorf("while setting flag --%s from environment: %s", flag.Name, err)
			}
			break
		}
	}
	return retErr
}

// Flag describes one command line flag and the variable it binds.
type Flag struct {
	// ID is the unique flag identifier within the manager.
	ID string
	// Value points to the variable receiving the flag value. Its
	// type selects the pflag registration; it may also implement
	// pflag.Value directly.
	Value interface{}
	// DefaultValue is the value used when the flag is not given.
	DefaultValue interface{}
	Name         string
	ShortHand    string
	Usage        string
	Hidden       bool
	Required     bool
	Deprecated   string
	// EnvKeys are environment variable suffixes consulted when the
	// flag is not set on the command line.
	EnvKeys []string
	// StringArray registers a []string value as a repeatable
	// argument instead of a comma-split list.
	StringArray bool
}

func (f *Flag) register(flags *pflag.FlagSet) error {
	switch v := f.Value.(type) {
	case pflag.Value:
		flags.VarP(v, f.Name, f.ShortHand, f.Usage)
	case *string:
		def, ok := f.DefaultValue.(string)
		if !ok {
			return fmt.Errorf("default value is not a string")
		}
		flags.StringVarP(v, f.Name, f.ShortHand, def, f.Usage)
	case *bool:
		def, ok := f.DefaultValue.(bool)
		if !ok {
			return fmt.Errorf("default value is not a bool")
		}
		flags.BoolVarP(v, f.Name, f.ShortHand, def, f.Usage)
	case *int:
		def, ok := f.DefaultValue.(int)
		if !ok {
			return fmt.Errorf("default value is not an int")
		}
		flags.IntVarP(v, f.Name, f.ShortHand, def, f.Usage)
	case *int64:
		def, ok := f.DefaultValue.(int64)
		if !ok {
			return fmt.Errorf("default value is not an int64")
		}
		flags.Int64VarP(v, f.Name, f.ShortHand, def, f.Usage)
	case *uint32:
		def, ok := f.DefaultValue.(uint32)
		if !ok {
			return fmt.Errorf("default value is not an uint32")
		}
		flags.Uint32VarP(v, f.Name, f.ShortHand, def, f.Usage)
	case *[]string:
		def, ok := f.DefaultValue.([]string)
		if !ok && f.DefaultValue != nil {
			return fmt.Errorf("default value is not a string slice")
		}
		if f.StringArray {
			flags.StringArrayVarP(v, f.Name, f.ShortHand, def, f.Usage)
		} else {
			flags.StringSliceVarP(v, f.Name, f.ShortHand, def, f.Usage)
		}
	default:
		return fmt.Errorf("unsupported flag value type %T", f.Value)
	}

	pf := flags.Lookup(f.Name)
	pf.Hidden = f.Hidden
	pf.Deprecated = f.Deprecated
	if f.Required {
		cobra.MarkFlagRequired(flags, f.Name)
	}
	return nil
}
