package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli"
)

var submarineCommand = cli.Command{
	Name:      "submarine",
	Usage:     "create a submarine (onchain to Lightning) swap",
	ArgsUsage: "invoice refund-pubkey",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "from", Value: "BTC"},
		cli.StringFlag{Name: "to", Value: "BTC"},
		cli.StringFlag{Name: "referral_id"},
	},
	Action: createSubmarine,
}

func createSubmarine(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "submarine")
	}

	req := map[string]interface{}{
		"from":            ctx.String("from"),
		"to":              ctx.String("to"),
		"invoice":         ctx.Args().Get(0),
		"refundPublicKey": ctx.Args().Get(1),
		"referralId":      ctx.String("referral_id"),
	}

	var resp map[string]interface{}
	if err := newRESTClient(ctx).post("/swap/submarine", req, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

var reverseCommand = cli.Command{
	Name:      "reverse",
	Usage:     "create a reverse (Lightning to onchain) swap",
	ArgsUsage: "amount-sat claim-pubkey",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "from", Value: "BTC"},
		cli.StringFlag{Name: "to", Value: "BTC"},
		cli.StringFlag{Name: "referral_id"},
	},
	Action: createReverse,
}

func createReverse(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "reverse")
	}

	invoiceAmount, err := strconv.ParseUint(ctx.Args().Get(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount-sat: %w", err)
	}

	req := map[string]interface{}{
		"from":             ctx.String("from"),
		"to":               ctx.String("to"),
		"invoiceAmount":    invoiceAmount,
		"claimPublicKey":   ctx.Args().Get(1),
		"referralId":       ctx.String("referral_id"),
	}

	var resp map[string]interface{}
	if err := newRESTClient(ctx).post("/swap/reverse", req, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

var chainSwapCommand = cli.Command{
	Name:      "chainswap",
	Usage:     "create an onchain-to-onchain swap",
	ArgsUsage: "user-amount server-amount claim-pubkey refund-pubkey",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "from", Value: "BTC"},
		cli.StringFlag{Name: "to", Value: "L-BTC"},
		cli.StringFlag{Name: "referral_id"},
	},
	Action: createChainSwap,
}

func createChainSwap(ctx *cli.Context) error {
	if ctx.NArg() != 4 {
		return cli.ShowCommandHelp(ctx, "chainswap")
	}

	userAmount, err := strconv.ParseUint(ctx.Args().Get(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user-amount: %w", err)
	}
	serverAmount, err := strconv.ParseUint(ctx.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid server-amount: %w", err)
	}

	req := map[string]interface{}{
		"from":            ctx.String("from"),
		"to":              ctx.String("to"),
		"userAmount":      userAmount,
		"serverAmount":    serverAmount,
		"claimPublicKey":  ctx.Args().Get(2),
		"refundPublicKey": ctx.Args().Get(3),
		"referralId":      ctx.String("referral_id"),
	}

	var resp map[string]interface{}
	if err := newRESTClient(ctx).post("/swap/chain", req, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

var statusCommand = cli.Command{
	Name:      "status",
	Usage:     "look up a swap's current status by id",
	ArgsUsage: "swap-id",
	Action:    getStatus,
}

func getStatus(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "status")
	}

	var resp map[string]interface{}
	path := fmt.Sprintf("/swap/%s", ctx.Args().Get(0))
	if err := newRESTClient(ctx).get(path, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

var refundCommand = cli.Command{
	Name:      "refund",
	Usage:     "cooperatively sign a submarine swap's refund transaction",
	ArgsUsage: "swap-id client-pubnonce transaction-hex input-index",
	Action:    refundSwap,
}

func refundSwap(ctx *cli.Context) error {
	if ctx.NArg() != 4 {
		return cli.ShowCommandHelp(ctx, "refund")
	}

	inputIndex, err := strconv.Atoi(ctx.Args().Get(3))
	if err != nil {
		return fmt.Errorf("invalid input-index: %w", err)
	}

	req := map[string]interface{}{
		"clientPubNonce": ctx.Args().Get(1),
		"transactionHex": ctx.Args().Get(2),
		"inputIndex":     inputIndex,
	}

	var resp map[string]interface{}
	path := fmt.Sprintf("/swap/submarine/%s/refund", ctx.Args().Get(0))
	if err := newRESTClient(ctx).post(path, req, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

var claimSubmarineCommand = cli.Command{
	Name:      "claim-submarine",
	Usage:     "cooperatively sign a submarine swap's claim transaction",
	ArgsUsage: "swap-id client-pubnonce transaction-hex input-index",
	Action:    claimSubmarineSwap,
}

func claimSubmarineSwap(ctx *cli.Context) error {
	if ctx.NArg() != 4 {
		return cli.ShowCommandHelp(ctx, "claim-submarine")
	}

	inputIndex, err := strconv.Atoi(ctx.Args().Get(3))
	if err != nil {
		return fmt.Errorf("invalid input-index: %w", err)
	}

	req := map[string]interface{}{
		"clientPubNonce": ctx.Args().Get(1),
		"transactionHex": ctx.Args().Get(2),
		"inputIndex":     inputIndex,
	}

	var resp map[string]interface{}
	path := fmt.Sprintf("/swap/submarine/%s/claim", ctx.Args().Get(0))
	if err := newRESTClient(ctx).post(path, req, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

var claimCommand = cli.Command{
	Name:      "claim",
	Usage:     "cooperatively sign a reverse swap's claim transaction",
	ArgsUsage: "swap-id preimage client-pubnonce transaction-hex input-index",
	Action:    claimSwap,
}

func claimSwap(ctx *cli.Context) error {
	if ctx.NArg() != 5 {
		return cli.ShowCommandHelp(ctx, "claim")
	}

	inputIndex, err := strconv.Atoi(ctx.Args().Get(4))
	if err != nil {
		return fmt.Errorf("invalid input-index: %w", err)
	}

	req := map[string]interface{}{
		"preimage":       ctx.Args().Get(1),
		"clientPubNonce": ctx.Args().Get(2),
		"transactionHex": ctx.Args().Get(3),
		"inputIndex":     inputIndex,
	}

	var resp map[string]interface{}
	path := fmt.Sprintf("/swap/reverse/%s/claim", ctx.Args().Get(0))
	if err := newRESTClient(ctx).post(path, req, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}
