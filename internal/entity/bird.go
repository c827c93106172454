// Package entity 定义空域后端的数据库实体。
// 鸽子与玩家由外部系统（繁育、账号）负责创建，本服务只读取属性并
// 在遭遇结算时修改归属、状态与数值字段。
package entity

import (
	"time"

	"github.com/aarondl/null/v8"
)

// BirdState 鸽子状态
type BirdState int16

const (
	BirdStateInCoop BirdState = iota
	BirdStateFlying
	BirdStateSick
	BirdStateResting
)

func (s BirdState) String() string {
	switch s {
	case BirdStateInCoop:
		return "in_coop"
	case BirdStateFlying:
		return "flying"
	case BirdStateSick:
		return "sick"
	case BirdStateResting:
		return "resting"
	default:
		return "unknown"
	}
}

// BirdRarity 稀有度，六档
type BirdRarity int16

const (
	RarityCommon BirdRarity = iota
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary
	RarityMythical
)

func (r BirdRarity) String() string {
	switch r {
	case RarityCommon:
		return "common"
	case RarityUncommon:
		return "uncommon"
	case RarityRare:
		return "rare"
	case RarityEpic:
		return "epic"
	case RarityLegendary:
		return "legendary"
	case RarityMythical:
		return "mythical"
	default:
		return "unknown"
	}
}

// Element 元素属性，来自繁育系统的基因
type Element int16

const (
	ElementNone Element = iota
	ElementFire
	ElementIce
	ElementWind
	ElementEmerald
)

func (e Element) String() string {
	switch e {
	case ElementFire:
		return "fire"
	case ElementIce:
		return "ice"
	case ElementWind:
		return "wind"
	case ElementEmerald:
		return "emerald"
	default:
		return "none"
	}
}

// FlightStaminaCost 每次飞行结束扣除的体力
const FlightStaminaCost = 20

// FlightStaminaThreshold 起飞所需的最低体力
const FlightStaminaThreshold = 20

// Bird 鸽子实体。四项核心属性由繁育系统写入，这里只消费。
type Bird struct {
	ID      string     `boil:"id" json:"id"`
	Name    string     `boil:"name" json:"name"`
	OwnerID string     `boil:"owner_id" json:"owner_id"`
	State   BirdState  `boil:"state" json:"state"`
	Rarity  BirdRarity `boil:"rarity" json:"rarity"`
	Element Element    `boil:"element" json:"element"`

	// 核心属性（1-100）
	Leadership       int `boil:"leadership" json:"leadership"`
	Loyalty          int `boil:"loyalty" json:"loyalty"`
	Speed            int `boil:"speed" json:"speed"`
	GeneticDominance int `boil:"genetic_dominance" json:"genetic_dominance"`

	// 健康与体力
	Health     int `boil:"health" json:"health"`
	MaxHealth  int `boil:"max_health" json:"max_health"`
	Stamina    int `boil:"stamina" json:"stamina"`
	MaxStamina int `boil:"max_stamina" json:"max_stamina"`

	CreatedAt time.Time `boil:"created_at" json:"created_at"`
	UpdatedAt null.Time `boil:"updated_at" json:"updated_at,omitempty"`
}

// TableName 返回表名
func (Bird) TableName() string {
	return "birds"
}

// TotalStats 四项核心属性之和，战力计算的基数
func (b *Bird) TotalStats() int {
	return b.Leadership + b.Loyalty + b.Speed + b.GeneticDominance
}

// IsReadyForFlight 是否满足起飞条件：在棚且体力达标
func (b *Bird) IsReadyForFlight() bool {
	return b.State == BirdStateInCoop && b.Stamina >= FlightStaminaThreshold
}

// StartFlying 切换到飞行状态
func (b *Bird) StartFlying() {
	b.State = BirdStateFlying
	b.touch()
}

// ReturnToCoop 返回鸟棚
func (b *Bird) ReturnToCoop() {
	b.State = BirdStateInCoop
	b.touch()
}

// ConsumeStamina 扣除体力，下限为 0
func (b *Bird) ConsumeStamina(amount int) {
	b.Stamina -= amount
	if b.Stamina < 0 {
		b.Stamina = 0
	}
	b.touch()
}

// TransferOwnership 变更归属（遭遇掠夺）
func (b *Bird) TransferOwnership(newOwnerID string) {
	b.OwnerID = newOwnerID
	b.touch()
}

func (b *Bird) touch() {
	b.UpdatedAt = null.TimeFrom(time.Now().UTC())
}
