package services

import (
	"context"

	"school-crm-api/internal/adapters/persistence/repositories"
	"school-crm-api/internal/core/domain"
)

// DashboardService aggregates account statistics for administrators
type DashboardService struct {
	userRepo repositories.UserRepository
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(userRepo repositories.UserRepository) *DashboardService {
	return &DashboardService{userRepo: userRepo}
}

// AdminDashboardData represents admin dashboard data
type AdminDashboardData struct {
	TotalUsers   int64            `json:"total_users"`
	UsersByRole  map[string]int64 `json:"users_by_role"`
	UsersByOrg   map[string]int64 `json:"users_by_organization"`
	Unaffiliated int64            `json:"unaffiliated_users"`
}

// GetAdminDashboard counts accounts per role and per organization
func (s *DashboardService) GetAdminDashboard(ctx context.Context) (*AdminDashboardData, error) {
	data := &AdminDashboardData{
		UsersByRole: make(map[string]int64, len(domain.Roles)),
		UsersByOrg:  make(map[string]int64, 2),
	}

	for _, role := range domain.Roles {
		n, err := s.userRepo.CountByRole(ctx, string(role))
		if err != nil {
			return nil, err
		}
		data.UsersByRole[string(role)] = n
		data.TotalUsers += n
	}

	var affiliated int64
	for _, org := range []domain.Organization{domain.OrganizationSchool, domain.OrganizationHospital} {
		// Only the total is needed.
		_, n, err := s.userRepo.List(ctx, repositories.UserFilter{Organization: string(org)}, 0, 1)
		if err != nil {
			return nil, err
		}
		data.UsersByOrg[string(org)] = n
		affiliated += n
	}
	data.Unaffiliated = data.TotalUsers - affiliated

	return data, nil
}
