// Package combat 实现遭遇战斗的纯计算逻辑：个体战力、鸽群战力、
// 胜负判定与战利品数额。除注入的随机源外不依赖任何状态。
package combat

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"taklaci-self/internal/entity"
)

// 稀有度战力倍率表
var rarityMultipliers = map[entity.BirdRarity]float64{
	entity.RarityCommon:    1.0,
	entity.RarityUncommon:  1.15,
	entity.RarityRare:      1.35,
	entity.RarityEpic:      1.6,
	entity.RarityLegendary: 1.85,
	entity.RarityMythical:  2.0,
}

// BirdPower 计算单只鸽子的战力。
// 基础战力为四项核心属性之和，再按健康(0.5-1.0)、体力(0.7-1.0)
// 与稀有度倍率缩放，结果截断为整数。
func BirdPower(bird *entity.Bird) int {
	basePower := float64(bird.TotalStats())

	healthFactor := 0.5
	if bird.MaxHealth > 0 {
		healthFactor = 0.5 + 0.5*float64(bird.Health)/float64(bird.MaxHealth)
	}

	staminaFactor := 0.7
	if bird.MaxStamina > 0 {
		staminaFactor = 0.7 + 0.3*float64(bird.Stamina)/float64(bird.MaxStamina)
	}

	rarityBonus, ok := rarityMultipliers[bird.Rarity]
	if !ok {
		rarityBonus = 1.0
	}

	return int(basePower * healthFactor * staminaFactor * rarityBonus)
}

// FlockPower 计算鸽群总战力。
// 个体战力之和再乘三项加成：元素协同（最大同元素组每只 +5%，
// 无元素不计）、群体规模（每多一只 +3%）、领导力（最高领导力
// 每点 +0.2%）。空群战力为 0。
func FlockPower(birds []*entity.Bird) int {
	if len(birds) == 0 {
		return 0
	}

	totalPower := 0
	for _, b := range birds {
		totalPower += BirdPower(b)
	}

	elementBonus := elementSynergy(birds)
	flockBonus := flockSynergy(birds)
	leadershipBonus := leadershipSynergy(birds)

	return int(float64(totalPower) * elementBonus * flockBonus * leadershipBonus)
}

func elementSynergy(birds []*entity.Bird) float64 {
	groups := make(map[entity.Element]int)
	for _, b := range birds {
		if b.Element == entity.ElementNone {
			continue
		}
		groups[b.Element]++
	}

	maxGroupSize := 0
	for _, n := range groups {
		if n > maxGroupSize {
			maxGroupSize = n
		}
	}

	return 1.0 + 0.05*float64(maxGroupSize)
}

func flockSynergy(birds []*entity.Bird) float64 {
	if len(birds) <= 1 {
		return 1.0
	}
	return 1.0 + 0.03*float64(len(birds)-1)
}

func leadershipSynergy(birds []*entity.Bird) float64 {
	highest := 0
	for _, b := range birds {
		if b.Leadership > highest {
			highest = b.Leadership
		}
	}
	return 1.0 + 0.2*float64(highest)/100.0
}

// ElementAdvantage 计算元素克制倍率：火克冰、冰克风、风克翡翠、翡翠克火。
// 留作审计与客户端展示，结算公式当前不使用。
func ElementAdvantage(attacker, defender entity.Element) float64 {
	if attacker == entity.ElementNone || defender == entity.ElementNone {
		return 1.0
	}

	if (attacker == entity.ElementFire && defender == entity.ElementIce) ||
		(attacker == entity.ElementIce && defender == entity.ElementWind) ||
		(attacker == entity.ElementWind && defender == entity.ElementEmerald) ||
		(attacker == entity.ElementEmerald && defender == entity.ElementFire) {
		return 1.15
	}

	if (defender == entity.ElementFire && attacker == entity.ElementIce) ||
		(defender == entity.ElementIce && attacker == entity.ElementWind) ||
		(defender == entity.ElementWind && attacker == entity.ElementEmerald) ||
		(defender == entity.ElementEmerald && attacker == entity.ElementFire) {
		return 0.85
	}

	return 1.0
}

// BirdsLost 计算败方损失的鸽子数。
// 只剩一只时不损失（单次遭遇不会清空鸽群）；否则基础损失 10%，
// 按战力差最多再加 30%，向上取整后封顶在 loserCount-1。
func BirdsLost(loserBirdCount, winnerPower, loserPower int) int {
	if loserBirdCount <= 1 {
		return 0
	}

	powerRatio := float64(winnerPower) / math.Max(float64(loserPower), 1)

	lossFraction := 0.1 + math.Min(0.3, (powerRatio-1)*0.15)
	if lossFraction < 0 {
		return 0
	}

	birdsToLose := int(math.Ceil(float64(loserBirdCount) * lossFraction))
	if birdsToLose > loserBirdCount-1 {
		return loserBirdCount - 1
	}
	if birdsToLose < 0 {
		return 0
	}
	return birdsToLose
}

// SelectBirdsToLose 选出败方损失的鸽子：忠诚度最低的先被夺走。
// 入参切片不会被修改。
func SelectBirdsToLose(birds []*entity.Bird, count int) []*entity.Bird {
	if count <= 0 {
		return nil
	}

	sorted := make([]*entity.Bird, len(birds))
	copy(sorted, birds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Loyalty < sorted[j].Loyalty
	})

	if count > len(sorted) {
		count = len(sorted)
	}
	return sorted[:count]
}

// CoinsReward 计算胜方金币奖励：基础 50 + 败方战力的一半 +
// 等级差补偿（败方每高一级 +25，不倒扣）。
func CoinsReward(loserPower, loserLevel, winnerLevel int) int {
	const baseReward = 50

	powerBonus := int(float64(loserPower) * 0.5)

	levelBonus := (loserLevel - winnerLevel) * 25
	if levelBonus < 0 {
		levelBonus = 0
	}

	return baseReward + powerBonus + levelBonus
}

// ExperienceReward 计算经验奖励。
// 胜方为 25 + 败方战力的 10%，上限 500；败方获得固定参与奖 12。
func ExperienceReward(loserPower int, isWinner bool) int {
	const baseXP = 25
	const maxXP = 500

	if !isWinner {
		return baseXP / 2
	}

	xp := baseXP + int(float64(loserPower)*0.1)
	if xp > maxXP {
		return maxXP
	}
	return xp
}

// Calculator 提供需要随机源的判定逻辑，随机源可注入以便测试。
// 并发安全：随机源访问由互斥锁保护。
type Calculator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewCalculator 创建使用时间种子的计算器
func NewCalculator() *Calculator {
	return NewCalculatorWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewCalculatorWithRand 创建使用指定随机源的计算器
func NewCalculatorWithRand(rng *rand.Rand) *Calculator {
	return &Calculator{rng: rng}
}

// DetermineWinner 按战力比例判定胜方并返回掷点（0-100，留作审计）。
// 一方战力为 0 时对方必胜；双方皆 0 时按分母 1 处理。
func (c *Calculator) DetermineWinner(player1ID string, power1 int, player2ID string, power2 int) (string, int) {
	totalPower := power1 + power2
	if totalPower == 0 {
		totalPower = 1
	}

	player1WinChance := float64(power1) / float64(totalPower) * 100

	c.mu.Lock()
	roll := c.rng.Intn(101)
	c.mu.Unlock()

	if float64(roll) <= player1WinChance {
		return player1ID, roll
	}
	return player2ID, roll
}

// WinChances 返回双方获胜概率（预览用，不掷点）。
// 双方战力皆 0 时视为五五开。
func WinChances(power1, power2 int) (float64, float64) {
	totalPower := power1 + power2
	if totalPower == 0 {
		return 0.5, 0.5
	}
	chance1 := float64(power1) / float64(totalPower)
	return chance1, 1 - chance1
}
