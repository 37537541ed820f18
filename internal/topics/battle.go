package topics

// Battle topics. Every event a battle emits is republished on BattleEvents;
// BattleCompleted carries one summary per finished battle for downstream
// settlement and ratings.
var (
	BattleEvents = Default().MustRegister(Topic{
		Name:        "battle.events",
		Module:      "battle",
		Description: "Every ordered event emitted by a battle session",
		Pattern:     "battle.events",
		Example:     `{"battle_id":"b1","seq":42,"type":"combat_results","epoch":3,"payload":{}}`,
	})

	BattleCompleted = Default().MustRegister(Topic{
		Name:        "battle.completed",
		Module:      "battle",
		Description: "Published once after a battle commits its COMPLETED transition",
		Pattern:     "battle.completed",
		Example:     `{"battle_id":"b1","winner":"p3","epoch":14,"timeout":true}`,
	})

	BattleDecisionScript = Default().MustRegister(Topic{
		Name:        "battle.decision.script_reloaded",
		Module:      "decision",
		Description: "The scripted decision provider picked up a new script version",
		Pattern:     "battle.decision.script_reloaded",
		Example:     `{"path":"bots/default.tengo"}`,
	})
)
