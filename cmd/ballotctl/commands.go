package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/vocdoni/ballotbox/crypto/hash"
	"github.com/vocdoni/ballotbox/crypto/signatures/ethereum"
	"github.com/vocdoni/ballotbox/merkle"
	"github.com/vocdoni/ballotbox/types"
	"github.com/vocdoni/ballotbox/util"
)

var commands = map[string]command{
	"keygen":     {usage: "[--seed s] generate a new private key", offline: true, run: keygen},
	"ping":       {usage: "check the API is reachable", run: ping},
	"organizer":  {usage: "show the organizer address", run: organizer},
	"create":     {usage: "create an election (organizer)", run: createElection},
	"list":       {usage: "list the elections", run: listElections},
	"info":       {usage: "<id> show an election", run: electionInfo},
	"setkey":     {usage: "<id> <hex key> set the encryption key (organizer)", run: setKey},
	"addvoters":  {usage: "<id> <address>... extend the allow-list (organizer)", run: addVoters},
	"voters":     {usage: "<id> show the allow-list", run: voters},
	"hasvoted":   {usage: "<id> <address> check whether an address voted", run: hasVoted},
	"vote":       {usage: "<id> <ballot> cast an allow-listed ballot", run: vote},
	"mvote":      {usage: "<id> cast an anonymous ballot with a merkle proof", run: merkleVote},
	"rvote":      {usage: "<id> relay an encrypted ballot", run: relayedVote},
	"end":        {usage: "<id> close the tally after the end time (organizer)", run: endElection},
	"forceend":   {usage: "<id> end an election early (organizer)", run: forceEndElection},
	"publish":    {usage: "<id> <label=count>... publish the final tally (organizer)", run: publishResults},
	"results":    {usage: "<id> show the results", run: results},
	"candidates": {usage: "<id> show the candidate labels", run: candidates},
	"ballots":    {usage: "<id> show the stored ciphertexts", run: ballots},
	"count":      {usage: "<id> show the number of stored ballots", run: ballotCount},
	"nullifier":  {usage: "<id> <hex nullifier> check whether a nullifier was spent", run: nullifierUsed},
	"merkle":     {usage: "leaf|root|verify <address> ... offline merkle tooling", offline: true, run: merkleTool},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (env *cmdEnv) print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(env.out, string(data))
	return err
}

// parseArgs checks the number of positional arguments and parses the
// election ID in the first one.
func parseArgs(args []string, min int) (uint64, error) {
	if len(args) < min {
		return 0, fmt.Errorf("expected at least %d arguments, got %d", min, len(args))
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid election ID %q", args[0])
	}
	return id, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseHexList(items []string) ([][]byte, error) {
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		b, err := types.HexStringToHexBytes(item)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// parseTally parses label=count pairs keeping their order.
func parseTally(items []string) ([]types.CandidateCount, error) {
	tally := make([]types.CandidateCount, 0, len(items))
	for _, item := range items {
		label, count, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid tally entry %q, expected label=count", item)
		}
		n, err := strconv.ParseUint(count, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid count in %q: %w", item, err)
		}
		tally = append(tally, types.CandidateCount{Candidate: label, Count: n})
	}
	return tally, nil
}

// keygen creates a random key, or derives it from --seed.
func keygen(env *cmdEnv, args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	seed := fs.String("seed", "", "derive the key from this seed")
	fs.SetOutput(env.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	var signer *ethereum.Signer
	var err error
	if *seed != "" {
		signer, err = ethereum.NewSignerFromSeed([]byte(*seed))
	} else {
		signer, err = ethereum.NewSigner()
	}
	if err != nil {
		return err
	}
	privKey := signer.HexPrivateKey()
	return env.print(map[string]string{
		"address":    signer.Address().Hex(),
		"privateKey": privKey.Hex(),
	})
}

func ping(env *cmdEnv, _ []string) error {
	if err := env.cli.Ping(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(env.out, "ok")
	return err
}

func organizer(env *cmdEnv, _ []string) error {
	addr, err := env.cli.Organizer()
	if err != nil {
		return err
	}
	resp := &types.OrganizerResponse{Organizer: addr}
	if signer := env.cli.Address(); signer != (common.Address{}) {
		is := signer == addr
		resp.IsOrganizer = &is
	}
	return env.print(resp)
}

func createElection(env *cmdEnv, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "election name")
	start := fs.Uint64("start", 0, "start time (unix seconds)")
	end := fs.Uint64("end", 0, "end time (unix seconds)")
	candidates := fs.StringSlice("candidates", nil, "comma separated candidate labels")
	key := fs.BytesHex("key", nil, "encryption public key (hex)")
	root := fs.BytesHex("root", nil, "merkle root of the voters tree (hex)")
	relayer := fs.Bool("relayer", false, "accept relayed encrypted ballots")
	fs.SetOutput(env.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := env.cli.CreateElection(&types.ElectionSetup{
		Name:                *name,
		StartTime:           *start,
		EndTime:             *end,
		Candidates:          *candidates,
		EncryptionPublicKey: *key,
		MerkleRoot:          *root,
		RelayerVoting:       *relayer,
	})
	if err != nil {
		return err
	}
	return env.print(&types.ElectionSetupResponse{ElectionID: id})
}

func listElections(env *cmdEnv, _ []string) error {
	elections, err := env.cli.Elections()
	if err != nil {
		return err
	}
	return env.print(&types.ElectionList{Elections: elections})
}

func electionInfo(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	info, err := env.cli.Election(id)
	if err != nil {
		return err
	}
	return env.print(info)
}

func setKey(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 2)
	if err != nil {
		return err
	}
	key, err := types.HexStringToHexBytes(args[1])
	if err != nil {
		return err
	}
	return env.cli.SetEncryptionKey(id, key)
}

func addVoters(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 2)
	if err != nil {
		return err
	}
	addrs := make([]common.Address, 0, len(args)-1)
	for _, arg := range args[1:] {
		addr, err := parseAddress(arg)
		if err != nil {
			return err
		}
		addrs = append(addrs, addr)
	}
	added, err := env.cli.AddVoters(id, addrs)
	if err != nil {
		return err
	}
	return env.print(&types.VotersAddedResponse{Added: added})
}

func voters(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	list, err := env.cli.Voters(id)
	if err != nil {
		return err
	}
	return env.print(&types.VotersResponse{Voters: list})
}

func hasVoted(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 2)
	if err != nil {
		return err
	}
	voter, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	voted, err := env.cli.HasVoted(id, voter)
	if err != nil {
		return err
	}
	return env.print(&types.HasVotedResponse{Voter: voter, HasVoted: voted})
}

// vote casts the ballot as given: a candidate label for plaintext elections
// or, with --hex, a ciphertext.
func vote(env *cmdEnv, args []string) error {
	fs := flag.NewFlagSet("vote", flag.ContinueOnError)
	isHex := fs.Bool("hex", false, "the ballot is a hex encoded ciphertext")
	fs.SetOutput(env.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseArgs(fs.Args(), 2)
	if err != nil {
		return err
	}
	ballot := []byte(fs.Arg(1))
	if *isHex {
		if ballot, err = types.HexStringToHexBytes(fs.Arg(1)); err != nil {
			return err
		}
	}
	return env.cli.Vote(id, ballot)
}

func merkleVote(env *cmdEnv, args []string) error {
	fs := flag.NewFlagSet("mvote", flag.ContinueOnError)
	nullifier := fs.BytesHex("nullifier", nil, "nullifier (hex)")
	ballot := fs.BytesHex("ballot", nil, "ciphertext (hex)")
	proof := fs.StringSlice("proof", nil, "comma separated proof siblings (hex)")
	fs.SetOutput(env.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseArgs(fs.Args(), 1)
	if err != nil {
		return err
	}
	siblings, err := parseHexList(*proof)
	if err != nil {
		return err
	}
	return env.cli.VoteWithMerkle(id, *nullifier, *ballot, siblings)
}

func relayedVote(env *cmdEnv, args []string) error {
	fs := flag.NewFlagSet("rvote", flag.ContinueOnError)
	ballot := fs.BytesHex("ballot", nil, "ciphertext (hex)")
	nonce := fs.Uint64("nonce", 0, "single use nonce (random if not set)")
	fs.SetOutput(env.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseArgs(fs.Args(), 1)
	if err != nil {
		return err
	}
	if !fs.Changed("nonce") {
		*nonce = util.RandomUint64()
	}
	if err := env.cli.VoteEncrypted(id, *ballot, *nonce); err != nil {
		return err
	}
	return env.print(map[string]uint64{"nonce": *nonce})
}

func endElection(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	return env.cli.EndElection(id)
}

func forceEndElection(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	return env.cli.ForceEndElection(id)
}

func publishResults(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 2)
	if err != nil {
		return err
	}
	tally, err := parseTally(args[1:])
	if err != nil {
		return err
	}
	return env.cli.PublishResults(id, tally)
}

func results(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	res, err := env.cli.Results(id)
	if err != nil {
		return err
	}
	return env.print(res)
}

func candidates(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	labels, err := env.cli.Candidates(id)
	if err != nil {
		return err
	}
	return env.print(&types.CandidatesResponse{Candidates: labels})
}

func ballots(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	list, err := env.cli.Ballots(id)
	if err != nil {
		return err
	}
	return env.print(&types.BallotsResponse{Ballots: list})
}

func ballotCount(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	n, err := env.cli.BallotCount(id)
	if err != nil {
		return err
	}
	return env.print(&types.BallotCountResponse{Count: n})
}

func nullifierUsed(env *cmdEnv, args []string) error {
	id, err := parseArgs(args, 2)
	if err != nil {
		return err
	}
	nullifier, err := types.HexStringToHexBytes(args[1])
	if err != nil {
		return err
	}
	used, err := env.cli.NullifierUsed(id, nullifier)
	if err != nil {
		return err
	}
	return env.print(&types.NullifierResponse{Nullifier: nullifier, Used: used})
}

// merkleTool works offline:
//
//	merkle leaf <address>
//	merkle root <address> [sibling...]
//	merkle verify <address> <root> [sibling...]
func merkleTool(env *cmdEnv, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: merkle leaf|root|verify <address> ...")
	}
	identity, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "leaf":
		return env.print(map[string]types.HexBytes{"leaf": hash.LeafHash(identity)})
	case "root":
		proof, err := parseHexList(args[2:])
		if err != nil {
			return err
		}
		return env.print(map[string]types.HexBytes{"root": merkle.ComputeRoot(hash.LeafHash(identity), proof)})
	case "verify":
		if len(args) < 3 {
			return fmt.Errorf("usage: merkle verify <address> <root> [sibling...]")
		}
		root, err := types.HexStringToHexBytes(args[2])
		if err != nil {
			return err
		}
		proof, err := parseHexList(args[3:])
		if err != nil {
			return err
		}
		return env.print(&types.BoolResponse{Result: merkle.VerifyIdentity(identity, root, proof)})
	default:
		return fmt.Errorf("unknown merkle command %q", args[0])
	}
}
