package schema

import "github.com/crmflow/api/internal/crm"

func init() {
	register(meetings)
	register(leads)
	register(contacts)
	register(deals)
	register(tasks)
}

var ownerAliases = []string{"owner", "assigned to", "sales rep", "user"}

var meetings = Entity{
	Name:       "meetings",
	Table:      "meetings",
	OwnerField: crm.FieldOrganizer,
	Fields: []FieldSpec{
		{
			Field:    crm.FieldSubject,
			Kind:     crm.KindText,
			Aliases:  []string{"subject", "title", "meeting subject", "meeting title"},
			Required: true,
			Sample:   "Quarterly review",
		},
		{
			Field:    crm.FieldStart,
			Kind:     crm.KindTimestamp,
			Aliases:  []string{"start date", "start", "date", "meeting date", "start datetime", "starts at"},
			Required: true,
			Clock:    crm.FieldStartClock,
			Sample:   "2026-03-22",
		},
		{
			Field:   crm.FieldStartClock,
			Kind:    crm.KindClock,
			Aliases: []string{"time", "meeting time", "start hour", "from"},
			Sample:  "14:30",
		},
		{
			Field:   crm.FieldEnd,
			Kind:    crm.KindTimestamp,
			Aliases: []string{"end date", "end", "end datetime", "ends at"},
			Clock:   crm.FieldEndClock,
			EndOf:   crm.FieldStart,
		},
		{
			Field:   crm.FieldEndClock,
			Kind:    crm.KindClock,
			Aliases: []string{"end hour", "to", "until"},
			Sample:  "15:30",
		},
		{
			Field:   crm.FieldLocation,
			Kind:    crm.KindText,
			Aliases: []string{"location", "place", "venue", "room"},
			Sample:  "Teams",
		},
		{
			Field:   crm.FieldDescription,
			Kind:    crm.KindText,
			Aliases: []string{"description", "notes", "agenda", "details"},
		},
		{
			Field:   crm.FieldStatus,
			Kind:    crm.KindEnum,
			Aliases: []string{"status", "meeting status"},
			Enum:    []string{"scheduled", "completed", "cancelled"},
			Default: "scheduled",
			EnumAliases: map[string]string{
				"canceled": "cancelled",
				"done":     "completed",
				"held":     "completed",
				"planned":  "scheduled",
			},
		},
		{
			Field:   crm.FieldOrganizer,
			Kind:    crm.KindUser,
			Aliases: append([]string{"organizer", "organiser", "host"}, ownerAliases...),
		},
	},
	Export: []crm.Field{
		crm.FieldSubject,
		crm.FieldStart,
		crm.FieldEnd,
		crm.FieldLocation,
		crm.FieldDescription,
		crm.FieldStatus,
		crm.FieldOrganizer,
	},
}

var leadStatuses = []string{"new", "contacted", "qualified", "unqualified", "lost"}

var leads = Entity{
	Name:       "leads",
	Table:      "leads",
	OwnerField: crm.FieldOwner,
	Fields: []FieldSpec{
		{
			Field:   crm.FieldFirstName,
			Kind:    crm.KindText,
			Aliases: []string{"first name", "firstname", "fname", "given name"},
			Sample:  "Jane",
		},
		{
			Field:    crm.FieldLastName,
			Kind:     crm.KindText,
			Aliases:  []string{"last name", "lastname", "lname", "surname", "family name"},
			Required: true,
			Sample:   "Doe",
		},
		{
			Field:    crm.FieldCompany,
			Kind:     crm.KindText,
			Aliases:  []string{"company", "company name", "organization", "organisation", "account"},
			Required: true,
			Sample:   "Acme Corp",
		},
		{
			Field:   crm.FieldEmail,
			Kind:    crm.KindEmail,
			Aliases: []string{"email", "email address", "e-mail", "mail"},
			Sample:  "jane@example.com",
		},
		{
			Field:   crm.FieldPhone,
			Kind:    crm.KindPhone,
			Aliases: []string{"phone", "phone number", "mobile", "telephone", "tel"},
			Sample:  "+1 512 555 0100",
		},
		{
			Field:   crm.FieldStatus,
			Kind:    crm.KindEnum,
			Aliases: []string{"status", "lead status"},
			Enum:    leadStatuses,
			Default: "new",
			EnumAliases: map[string]string{
				"open":         "new",
				"working":      "contacted",
				"in_progress":  "contacted",
				"disqualified": "unqualified",
			},
			Sample: "new",
		},
		{
			Field:   crm.FieldSource,
			Kind:    crm.KindText,
			Aliases: []string{"source", "lead source", "origin", "channel"},
			Sample:  "Referral",
		},
		{
			Field:   crm.FieldOwner,
			Kind:    crm.KindUser,
			Aliases: append([]string{"lead owner"}, ownerAliases...),
		},
		{
			Field:   crm.FieldFollowUpDate,
			Kind:    crm.KindDate,
			Aliases: []string{"follow up", "follow up date", "next follow up", "next contact"},
			Sample:  "2026-04-01",
		},
	},
	Export: []crm.Field{
		crm.FieldFirstName,
		crm.FieldLastName,
		crm.FieldCompany,
		crm.FieldEmail,
		crm.FieldPhone,
		crm.FieldStatus,
		crm.FieldSource,
		crm.FieldOwner,
		crm.FieldFollowUpDate,
	},
}

var contacts = Entity{
	Name:       "contacts",
	Table:      "contacts",
	OwnerField: crm.FieldOwner,
	Fields: []FieldSpec{
		{
			Field:   crm.FieldFirstName,
			Kind:    crm.KindText,
			Aliases: []string{"first name", "firstname", "fname", "given name"},
			Sample:  "Jane",
		},
		{
			Field:    crm.FieldLastName,
			Kind:     crm.KindText,
			Aliases:  []string{"last name", "lastname", "lname", "surname", "family name"},
			Required: true,
			Sample:   "Doe",
		},
		{
			Field:    crm.FieldEmail,
			Kind:     crm.KindEmail,
			Aliases:  []string{"email", "email address", "e-mail", "mail"},
			Required: true,
			Sample:   "jane@example.com",
		},
		{
			Field:   crm.FieldPhone,
			Kind:    crm.KindPhone,
			Aliases: []string{"phone", "phone number", "mobile", "telephone", "tel"},
		},
		{
			Field:   crm.FieldJobTitle,
			Kind:    crm.KindText,
			Aliases: []string{"title", "job title", "position", "role"},
			Sample:  "Head of Operations",
		},
		{
			Field:   crm.FieldAccount,
			Kind:    crm.KindText,
			Aliases: []string{"account", "company", "organization", "organisation"},
			Sample:  "Acme Corp",
		},
		{
			Field:   crm.FieldOwner,
			Kind:    crm.KindUser,
			Aliases: append([]string{"contact owner"}, ownerAliases...),
		},
	},
	Export: []crm.Field{
		crm.FieldFirstName,
		crm.FieldLastName,
		crm.FieldEmail,
		crm.FieldPhone,
		crm.FieldJobTitle,
		crm.FieldAccount,
		crm.FieldOwner,
	},
}

var deals = Entity{
	Name:       "deals",
	Table:      "deals",
	OwnerField: crm.FieldOwner,
	Fields: []FieldSpec{
		{
			Field:    crm.FieldDealName,
			Kind:     crm.KindText,
			Aliases:  []string{"deal name", "name", "title", "deal", "opportunity"},
			Required: true,
			Sample:   "Acme renewal",
		},
		{
			Field:    crm.FieldAmount,
			Column:   "amount_cents",
			Kind:     crm.KindMoney,
			Aliases:  []string{"value", "deal value", "deal amount", "price"},
			Required: true,
			Sample:   "12500.00",
		},
		{
			Field:   crm.FieldStage,
			Kind:    crm.KindEnum,
			Aliases: []string{"stage", "deal stage", "pipeline stage"},
			Enum:    []string{"prospecting", "qualification", "proposal", "negotiation", "closed_won", "closed_lost"},
			Default: "prospecting",
			EnumAliases: map[string]string{
				"won":       "closed_won",
				"lost":      "closed_lost",
				"qualified": "qualification",
				"new":       "prospecting",
			},
			Sample: "proposal",
		},
		{
			Field:   crm.FieldExpectedCloseDate,
			Kind:    crm.KindDate,
			Aliases: []string{"close date", "expected close", "closing date"},
			Sample:  "2026-06-30",
		},
		{
			Field:   crm.FieldContactName,
			Kind:    crm.KindText,
			Aliases: []string{"contact", "primary contact"},
			Sample:  "Jane Doe",
		},
		{
			Field:   crm.FieldAccount,
			Kind:    crm.KindText,
			Aliases: []string{"account", "company"},
			Sample:  "Acme Corp",
		},
		{
			Field:   crm.FieldOwner,
			Kind:    crm.KindUser,
			Aliases: append([]string{"deal owner"}, ownerAliases...),
		},
	},
	Export: []crm.Field{
		crm.FieldDealName,
		crm.FieldAmount,
		crm.FieldStage,
		crm.FieldExpectedCloseDate,
		crm.FieldContactName,
		crm.FieldAccount,
		crm.FieldOwner,
	},
}

var tasks = Entity{
	Name:       "tasks",
	Table:      "tasks",
	OwnerField: crm.FieldAssignee,
	Fields: []FieldSpec{
		{
			Field:    crm.FieldTitle,
			Kind:     crm.KindText,
			Aliases:  []string{"title", "task", "task name", "subject", "name"},
			Required: true,
			Sample:   "Send proposal",
		},
		{
			Field:    crm.FieldDueDate,
			Kind:     crm.KindTimestamp,
			Aliases:  []string{"due date", "due", "deadline", "due on"},
			Required: true,
			Clock:    crm.FieldDueClock,
			Sample:   "2026-03-25",
		},
		{
			Field:   crm.FieldDueClock,
			Kind:    crm.KindClock,
			Aliases: []string{"due time", "time"},
			Sample:  "17:00",
		},
		{
			Field:   crm.FieldPriority,
			Kind:    crm.KindEnum,
			Aliases: []string{"priority"},
			Enum:    []string{"low", "medium", "high"},
			Default: "medium",
			EnumAliases: map[string]string{
				"normal": "medium",
				"urgent": "high",
			},
			Sample: "high",
		},
		{
			Field:   crm.FieldStatus,
			Kind:    crm.KindEnum,
			Aliases: []string{"status", "task status"},
			Enum:    []string{"open", "in_progress", "done"},
			Default: "open",
			EnumAliases: map[string]string{
				"todo":      "open",
				"started":   "in_progress",
				"completed": "done",
				"closed":    "done",
			},
		},
		{
			Field:   crm.FieldDescription,
			Kind:    crm.KindText,
			Aliases: []string{"description", "notes", "details"},
		},
		{
			Field:   crm.FieldAssignee,
			Kind:    crm.KindUser,
			Aliases: append([]string{"assignee", "responsible"}, ownerAliases...),
		},
	},
	Export: []crm.Field{
		crm.FieldTitle,
		crm.FieldDueDate,
		crm.FieldPriority,
		crm.FieldStatus,
		crm.FieldDescription,
		crm.FieldAssignee,
	},
}
