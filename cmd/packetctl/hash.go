package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/danmu-netcodec/internal/network/packet"
)

func hashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash [type-name...]",
		Short: "Print packet type ids",
		Long: `Print the 64-bit FNV-1 type id for each given type name.

Without arguments the demo packets registered by serve and send are listed.

Examples:
  packetctl hash Game.Packets.Move
  packetctl hash`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(cmd.OutOrStdout(), args)
		},
	}
	return cmd
}

func runHash(out io.Writer, names []string) error {
	if len(names) > 0 {
		for _, name := range names {
			fmt.Fprintf(out, "0x%016x  %s\n", packet.Hash(name), name)
		}
		return nil
	}

	proc := packet.New(packet.Options{})
	if err := registerDemoPackets(proc, demoHandlers{}); err != nil {
		return err
	}
	for _, sub := range proc.Subscriptions() {
		fmt.Fprintf(out, "0x%016x  %-28s reusable=%t userData=%t\n",
			sub.TypeID, sub.TypeName, sub.Reusable, sub.WithUserData)
	}
	return nil
}
