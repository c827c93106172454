package entity

import (
	"time"

	"github.com/aarondl/null/v8"
)

// Player 玩家实体。账号注册与认证由外部系统负责，
// 本服务只在遭遇结算时修改金币、经验与各项计数。
type Player struct {
	ID       string `boil:"id" json:"id"`
	Username string `boil:"username" json:"username"`

	// 游戏币
	Coins int `boil:"coins" json:"coins"`

	// 遭遇统计
	TotalEncountersWon  int `boil:"total_encounters_won" json:"total_encounters_won"`
	TotalEncountersLost int `boil:"total_encounters_lost" json:"total_encounters_lost"`
	TotalBirdsLost      int `boil:"total_birds_lost" json:"total_birds_lost"`
	TotalBirdsLooted    int `boil:"total_birds_looted" json:"total_birds_looted"`

	// 成长
	Level        int `boil:"level" json:"level"`
	Experience   int `boil:"experience" json:"experience"`
	CoopCapacity int `boil:"coop_capacity" json:"coop_capacity"`

	CreatedAt time.Time `boil:"created_at" json:"created_at"`
	UpdatedAt null.Time `boil:"updated_at" json:"updated_at,omitempty"`
}

// TableName 返回表名
func (Player) TableName() string {
	return "players"
}

// AddCoins 增加金币。负数是编程错误，直接忽略。
func (p *Player) AddCoins(amount int) {
	if amount < 0 {
		return
	}
	p.Coins += amount
	p.touch()
}

// AddExperience 增加经验并处理升级。
// 升级门槛为 level*100，可能连升多级；每级鸟棚容量 +2。
func (p *Player) AddExperience(xp int) {
	p.Experience += xp

	required := p.Level * 100
	for p.Experience >= required {
		p.Experience -= required
		p.Level++
		p.CoopCapacity += 2
		required = p.Level * 100
	}
	p.touch()
}

// RecordEncounterWin 记录一次遭遇胜利
func (p *Player) RecordEncounterWin() {
	p.TotalEncountersWon++
	p.touch()
}

// RecordEncounterLoss 记录一次遭遇失败
func (p *Player) RecordEncounterLoss() {
	p.TotalEncountersLost++
	p.touch()
}

// RecordBirdLooted 记录掠得一只鸽子
func (p *Player) RecordBirdLooted() {
	p.TotalBirdsLooted++
	p.touch()
}

// RecordBirdLost 记录失去一只鸽子
func (p *Player) RecordBirdLost() {
	p.TotalBirdsLost++
	p.touch()
}

func (p *Player) touch() {
	p.UpdatedAt = null.TimeFrom(time.Now().UTC())
}
