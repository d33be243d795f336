package bot

import (
	"context"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

const (
	stopAck = "Understood. I won't check in on you anymore. Take care of yourself, and reach out whenever you want to talk."
	okayAck = "I'm really glad to hear that. I'm around whenever you want to chat!"
	supportiveReply = "Thank you for telling me. I'm here to listen, but please also consider talking to someone you trust or a professional. " +
		"If you're in crisis, you can call or text 988 (US) to reach trained counselors. You matter."
)

// handleWellbeingReply routes a DM from a flagged user through the
// wellbeing check. Its own failures never block normal handling.
func (p *Pipeline) handleWellbeingReply(ctx context.Context, msg Inbound) guardResult {
	flagged, err := p.userFlagged(ctx, msg.Username)
	if err != nil {
		p.logger.Error("Failed to look up wellbeing flag",
			zap.Error(err),
			zap.String("username", msg.Username))
		return pass
	}
	if !flagged {
		return pass
	}

	verdict := p.wellbeing.Classify(msg.Content)
	switch {
	case verdict.WantsToStop:
		p.clearFlagEverywhere(ctx, msg.Username)
		p.reply(msg.ChannelID, stopAck)
		return terminate("user asked to stop wellbeing check-ins")
	case verdict.IsOkay && verdict.Confidence >= 0.6:
		p.clearFlagEverywhere(ctx, msg.Username)
		p.reply(msg.ChannelID, okayAck)
		return terminate("user confirmed they are okay")
	case !verdict.IsOkay:
		p.reply(msg.ChannelID, supportiveReply)
		return terminate("user is still struggling, flag kept")
	default:
		// Low confidence: keep the flag and let the message fall through
		// to normal handling.
		return pass
	}
}

func (p *Pipeline) userFlagged(ctx context.Context, username string) (bool, error) {
	flagged, err := p.store.FlaggedConfigs(ctx)
	if err != nil {
		return false, err
	}
	for _, cfg := range flagged {
		if cfg.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pipeline) clearFlagEverywhere(ctx context.Context, username string) {
	if _, err := p.store.ClearMentalHealthFlag(ctx, username, ""); err != nil {
		p.logger.Error("Failed to clear wellbeing flag",
			zap.Error(err),
			zap.String("username", username))
	}
}

// sendWellbeingDM sends the reactive check-in DM and stamps the attempt so
// the rolling rate window holds. Best effort; failures are only logged.
func (p *Pipeline) sendWellbeingDM(ctx context.Context, username, userID string) {
	if userID == "" {
		p.logger.Warn("No user id for wellbeing DM", zap.String("username", username))
		return
	}

	persona, err := p.store.GetPersona(ctx, storage.DefaultPersonality)
	if err != nil {
		p.logger.Error("Failed to load persona for wellbeing DM", zap.Error(err))
	}

	text, err := p.generator.GenerateWellbeingNudge(ctx, persona)
	if err != nil {
		p.logger.Warn("Falling back to static wellbeing DM", zap.Error(err))
		text = "Hey, I noticed things sounded heavy earlier. How are you doing? I'm here if you want to talk."
	}

	if err := p.messenger.SendDM(userID, text); err != nil {
		p.logger.Error("Failed to send wellbeing DM",
			zap.Error(err),
			zap.String("user_id", userID))
		return
	}

	if err := p.store.StampCheckInAttempt(ctx, username, time.Now()); err != nil {
		p.logger.Error("Failed to stamp wellbeing DM attempt",
			zap.Error(err),
			zap.String("username", username))
	}
}
