package gormstore

import (
	"github.com/MarkoPoloResearchLab/promorang/internal/admin"
	"github.com/MarkoPoloResearchLab/promorang/internal/automation"
	"github.com/MarkoPoloResearchLab/promorang/internal/partners"
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
)

func mapBalance(model Balance) economy.Balance {
	return economy.Balance{
		UserID: model.UserID,
		Points: model.Points,
		Keys:   model.Keys,
		Gems:   model.Gems,
		Gold:   model.Gold,
	}
}

func mapEntry(model LedgerEntry) economy.Entry {
	return economy.Entry{
		EntryID: model.EntryID,
		UserID:  model.UserID,
		Type:    economy.EntryType(model.Type),
		Deltas: economy.Deltas{
			Points: model.PointsDelta,
			Keys:   model.KeysDelta,
			Gems:   model.GemsDelta,
			Gold:   model.GoldDelta,
		},
		Reference:      string(model.Reference),
		IdempotencyKey: stringOrEmpty(model.IdempotencyKey),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
}

func mapEntries(rows []LedgerEntry) []economy.Entry {
	entries := make([]economy.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, mapEntry(row))
	}
	return entries
}

func mapUser(model User) economy.User {
	return economy.User{
		UserID:          model.UserID,
		ProviderSubject: model.ProviderSubject,
		Email:           model.Email,
		DisplayName:     model.DisplayName,
		AvatarURL:       model.AvatarURL,
		Tier:            economy.Tier(model.Tier),
		Role:            economy.Role(model.Role),
		CreatedUnixUTC:  model.CreatedAt.Unix(),
	}
}

func mapContent(model Content) economy.Content {
	return economy.Content{
		ContentID:      model.ContentID,
		CreatorID:      model.CreatorID,
		Title:          model.Title,
		Platform:       model.Platform,
		URL:            model.URL,
		Description:    model.Description,
		TotalShares:    model.TotalShares,
		SharesSold:     model.SharesSold,
		SharePrice:     model.SharePrice,
		Status:         economy.ContentStatus(model.Status),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
}

func mapProject(model FundingProject) economy.FundingProject {
	return economy.FundingProject{
		ProjectID:       model.ProjectID,
		CreatorID:       model.CreatorID,
		Title:           model.Title,
		Description:     model.Description,
		GoalAmount:      model.GoalAmount,
		FundedAmount:    model.FundedAmount,
		Status:          economy.ProjectStatus(model.Status),
		DeadlineUnixUTC: timeOrZero(model.DeadlineAt),
		CreatedUnixUTC:  model.CreatedAt.Unix(),
	}
}

func mapDrop(model Drop) economy.Drop {
	return economy.Drop{
		DropID:          model.DropID,
		CreatorID:       model.CreatorID,
		Title:           model.Title,
		Description:     model.Description,
		Status:          economy.DropStatus(model.Status),
		RewardCurrency:  economy.Currency(model.RewardCurrency),
		RewardAmount:    model.RewardAmount,
		MaxParticipants: model.MaxParticipants,
		DeadlineUnixUTC: timeOrZero(model.DeadlineAt),
		CreatedUnixUTC:  model.CreatedAt.Unix(),
	}
}

func mapApplication(model DropApplication) economy.DropApplication {
	return economy.DropApplication{
		ApplicationID:   model.ApplicationID,
		DropID:          model.DropID,
		UserID:          model.UserID,
		Status:          economy.ApplicationStatus(model.Status),
		SubmissionURL:   model.SubmissionURL,
		CreatedUnixUTC:  model.CreatedAt.Unix(),
		ReviewedUnixUTC: timeOrZero(model.ReviewedAt),
	}
}

func mapApplications(rows []DropApplication) []economy.DropApplication {
	applications := make([]economy.DropApplication, 0, len(rows))
	for _, row := range rows {
		applications = append(applications, mapApplication(row))
	}
	return applications
}

func mapStake(model Stake) economy.Stake {
	return economy.Stake{
		StakeID:          model.StakeID,
		UserID:           model.UserID,
		Channel:          model.Channel,
		Amount:           model.Amount,
		Multiplier:       model.Multiplier,
		Status:           economy.StakeStatus(model.Status),
		Payout:           model.Payout,
		StartedUnixUTC:   model.StartedAt.Unix(),
		ExpiresUnixUTC:   model.ExpiresAt.Unix(),
		CompletedUnixUTC: timeOrZero(model.CompletedAt),
	}
}

func mapStakes(rows []Stake) []economy.Stake {
	stakes := make([]economy.Stake, 0, len(rows))
	for _, row := range rows {
		stakes = append(stakes, mapStake(row))
	}
	return stakes
}

func mapPayment(model Payment) economy.Payment {
	return economy.Payment{
		PaymentID:         model.PaymentID,
		UserID:            model.UserID,
		Kind:              economy.PaymentKind(model.Kind),
		Provider:          model.Provider,
		ProviderSessionID: stringOrEmpty(model.ProviderSessionID),
		Gems:              model.Gems,
		Status:            economy.PaymentStatus(model.Status),
		CreatedUnixUTC:    model.CreatedAt.Unix(),
	}
}

func mapAdminLog(model AdminLog) admin.Log {
	return admin.Log{
		LogID:          model.LogID,
		AdminID:        model.AdminID,
		Action:         model.Action,
		TargetType:     model.TargetType,
		TargetID:       model.TargetID,
		Details:        string(model.Details),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
}

func mapPartnerApp(model PartnerApp) partners.App {
	return partners.App{
		AppID:          model.AppID,
		OwnerID:        model.OwnerID,
		Name:           model.Name,
		WebhookURL:     model.WebhookURL,
		KeyPrefix:      model.KeyPrefix,
		KeyHash:        model.KeyHash,
		Status:         partners.AppStatus(model.Status),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
}

func mapPartnerEvent(model PartnerWebhookEvent) partners.Event {
	return partners.Event{
		EventID:          model.EventID,
		AppID:            model.AppID,
		EventType:        model.EventType,
		Payload:          string(model.Payload),
		Status:           partners.EventStatus(model.Status),
		Attempts:         model.Attempts,
		LastError:        model.LastError,
		CreatedUnixUTC:   model.CreatedAt.Unix(),
		DeliveredUnixUTC: timeOrZero(model.DeliveredAt),
	}
}

func mapJob(model CronJob) automation.JobState {
	return automation.JobState{
		Name:           model.JobName,
		Status:         automation.Status(model.Status),
		LastRunUnixUTC: timeOrZero(model.LastRunAt),
		LastDurationMS: model.LastDurationMS,
		LastError:      model.LastError,
		RunCount:       model.RunCount,
	}
}
