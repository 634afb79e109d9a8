package flows

import "github.com/orderflow/orderflow/internal/engine"

// otpConfig parameterizes one grafted verification sub-flow. The sub-flow's
// internal shape is always the same; only its exits differ per host.
type otpConfig struct {
	// parent is the composite the sub-flow nests under.
	parent engine.StateID
	// successTarget receives the machine once possession is proven and an
	// account is adopted.
	successTarget engine.StateID
	// selectTarget receives the machine when possession is proven but more
	// than one candidate remains.
	selectTarget engine.StateID
	// createTarget, when set, receives the machine when no candidate matched
	// and a fresh account should be created.
	createTarget engine.StateID
	// fallbackTarget receives the machine when no candidate matched and
	// creation is not offered.
	fallbackTarget engine.StateID
}

// graftOTP adds a verification sub-flow under cfg.parent and returns the
// composite id to target when entering it. The sub-flow walks
// choosingChannel -> sendingCode -> enteringCode -> verifying; the exits on
// verification are resolved against the host's configuration.
func graftOTP(b *engine.Builder, cfg otpConfig) engine.StateID {
	root := cfg.parent + ".otp"
	choosing := root + ".choosingChannel"
	sending := root + ".sendingCode"
	entering := root + ".enteringCode"
	verifying := root + ".verifying"

	b.State(root, engine.WithParent(cfg.parent), engine.WithInitial(choosing)).
		State(choosing, engine.WithParent(root)).
		State(sending, engine.WithParent(root)).
		State(entering, engine.WithParent(root)).
		State(verifying, engine.WithParent(root))

	b.On(choosing, EvChooseChannel, engine.Transition{Target: sending, Action: chooseChannel})

	b.On(sending, engine.ActorDone(actorSendOTP), engine.Transition{Target: entering, Action: recordVerificationSession}).
		On(sending, engine.ActorFailed(actorSendOTP), engine.Transition{Target: choosing, Action: failSendOTP})

	b.On(entering, EvSubmitCode, engine.Transition{Target: verifying, Action: startVerifyOTP}).
		On(entering, EvResendCode, engine.Transition{Target: sending, Action: resendCode}).
		On(entering, EvChangeChannel, engine.Transition{Target: choosing, Action: changeChannel})

	// Verification outcome routing, first match wins: an already-adopted
	// account is marked verified, a sole candidate is adopted, multiple
	// candidates go to selection, and a miss either creates an account or
	// regresses.
	b.On(verifying, engine.ActorDone(actorVerifyOTP), engine.Transition{
		Guard: "isAuthenticated", Target: cfg.successTarget, Action: markVerified,
	}).On(verifying, engine.ActorDone(actorVerifyOTP), engine.Transition{
		Guard: "candidateCount == 1", Target: cfg.successTarget, Action: adoptSoleCandidate,
	}).On(verifying, engine.ActorDone(actorVerifyOTP), engine.Transition{
		Guard: "candidateCount > 1", Target: cfg.selectTarget, Action: holdForSelection,
	})
	if cfg.createTarget != "" {
		b.On(verifying, engine.ActorDone(actorVerifyOTP), engine.Transition{
			Target: cfg.createTarget, Action: startCreateAccount,
		})
	} else {
		b.On(verifying, engine.ActorDone(actorVerifyOTP), engine.Transition{
			Target: cfg.fallbackTarget, Action: noSuchAccount,
		})
	}

	// An invalid code burns an attempt; the final attempt or a transport
	// failure tears the verification session down.
	b.On(verifying, engine.ActorFailed(actorVerifyOTP), engine.Transition{
		Guard: "errInvalidCode && otpAttempts >= otpMaxAttempts - 1", Target: choosing, Action: exhaustAttempts,
	}).On(verifying, engine.ActorFailed(actorVerifyOTP), engine.Transition{
		Guard: "errInvalidCode", Target: entering, Action: countCodeMismatch,
	}).On(verifying, engine.ActorFailed(actorVerifyOTP), engine.Transition{
		Target: choosing, Action: failVerifyTransport,
	})

	return root
}
