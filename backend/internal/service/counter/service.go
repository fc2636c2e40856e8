package counter

import (
	"context"
	"fmt"

	"prompt-share/backend/internal/infra/metrics"
	"prompt-share/backend/internal/repository"

	"go.uber.org/zap"
)

// SyncError 表示 Prompt 行写入已生效、但聚合计数增量未完全落库。
// 调用方据此区分“状态已变更、计数可能滞后”与“什么都没发生”，并决定是否人工对账。
type SyncError struct {
	Err error
}

// Error 返回带底层原因的错误描述。
func (e *SyncError) Error() string {
	return fmt.Sprintf("计数同步失败: %v", e.Err)
}

// Unwrap 暴露底层存储错误。
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Snapshot 描述 Prompt 在某一时刻对聚合计数的贡献来源。
type Snapshot struct {
	Published  bool
	CategoryID uint
	TagIDs     []uint
}

// Plan 汇总一次状态迁移需要补偿的全部计数增量，同一实体只保留净增量。
type Plan struct {
	Category map[uint]int
	Tag      map[uint]int
}

// addCategory 累加分类增量，归零时移除。
func (p *Plan) addCategory(id uint, delta int) {
	if id == 0 || delta == 0 {
		return
	}
	if p.Category == nil {
		p.Category = make(map[uint]int)
	}
	p.Category[id] += delta
	if p.Category[id] == 0 {
		delete(p.Category, id)
	}
}

// addTag 累加标签增量，归零时移除。
func (p *Plan) addTag(id uint, delta int) {
	if id == 0 || delta == 0 {
		return
	}
	if p.Tag == nil {
		p.Tag = make(map[uint]int)
	}
	p.Tag[id] += delta
	if p.Tag[id] == 0 {
		delete(p.Tag, id)
	}
}

// Empty 判断计划中是否没有任何待应用的增量。
func (p Plan) Empty() bool {
	return len(p.Category) == 0 && len(p.Tag) == 0
}

// BuildPlan 对比迁移前后的快照，得出净增量计划。
// 规则：快照处于 published 状态时，为其分类与每个标签各贡献 +1；
// 计划即“迁移后贡献 − 迁移前贡献”。创建传 before=nil，删除传 after=nil。
// 只有跨越 published 边界（或已发布状态下分类/标签集合变化）才会产生非空计划。
func BuildPlan(before, after *Snapshot) Plan {
	var plan Plan
	if before != nil && before.Published {
		plan.addCategory(before.CategoryID, -1)
		for _, tagID := range before.TagIDs {
			plan.addTag(tagID, -1)
		}
	}
	if after != nil && after.Published {
		plan.addCategory(after.CategoryID, +1)
		for _, tagID := range after.TagIDs {
			plan.addTag(tagID, +1)
		}
	}
	return plan
}

// Service 负责把计数增量批量写入分类与标签表。
// 每个实体一条原子 UPDATE，同一迁移内不会对同一实体重复计数。
type Service struct {
	taxonomy *repository.TaxonomyRepository
	logger   *zap.SugaredLogger
}

// NewService 创建计数同步服务。
func NewService(taxonomy *repository.TaxonomyRepository, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{taxonomy: taxonomy, logger: logger}
}

// ApplyCategoryDelta 调整单个分类计数。
func (s *Service) ApplyCategoryDelta(ctx context.Context, categoryID uint, delta int) error {
	return s.taxonomy.ApplyCategoryDelta(ctx, categoryID, delta)
}

// ApplyTagDelta 调整单个标签计数。
func (s *Service) ApplyTagDelta(ctx context.Context, tagID uint, delta int) error {
	return s.taxonomy.ApplyTagDelta(ctx, tagID, delta)
}

// Apply 依次应用计划中的全部增量，首个失败即中断并返回 SyncError。
// 失败时已生效的增量不回滚，错误信息携带剩余缺口供对账。
func (s *Service) Apply(ctx context.Context, plan Plan) error {
	if plan.Empty() {
		return nil
	}
	for categoryID, delta := range plan.Category {
		if err := s.taxonomy.ApplyCategoryDelta(ctx, categoryID, delta); err != nil {
			s.logger.Errorw("apply category delta failed", "category_id", categoryID, "delta", delta, "error", err)
			metrics.RecordCounterSyncFailure("category")
			return &SyncError{Err: fmt.Errorf("category %d delta %+d: %w", categoryID, delta, err)}
		}
	}
	for tagID, delta := range plan.Tag {
		if err := s.taxonomy.ApplyTagDelta(ctx, tagID, delta); err != nil {
			s.logger.Errorw("apply tag delta failed", "tag_id", tagID, "delta", delta, "error", err)
			metrics.RecordCounterSyncFailure("tag")
			return &SyncError{Err: fmt.Errorf("tag %d delta %+d: %w", tagID, delta, err)}
		}
	}
	return nil
}
