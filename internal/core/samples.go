package core

// SampleCampaigns is the starter catalog written by the seeding routine.
// Timestamps are filled in at seeding time.
func SampleCampaigns() []Campaign {
	return []Campaign{
		{
			ID:           "campaign1",
			Name:         "Educate Underprivileged Children",
			Description:  "Help provide quality education to children in remote areas.",
			Category:     "Education",
			GoalAmount:   10000,
			RaisedAmount: 3500,
			ImageURL:     "https://www.cypnow.co.uk/media/qlxcmm1h/classroomtabletsmonkeybusinessadobestock-350x250.jpg",
		},
		{
			ID:           "campaign2",
			Name:         "Clean Water for All",
			Description:  "Fund projects to bring clean and safe drinking water to communities.",
			Category:     "Environment",
			GoalAmount:   15000,
			RaisedAmount: 7200,
			ImageURL:     "https://dva1blx501zrw.cloudfront.net/uploaded_images/us/images/2222/original/shutterstock_2153548903.jpg",
		},
		{
			ID:           "campaign3",
			Name:         "Support Animal Shelters",
			Description:  "Provide food, shelter, and medical care for abandoned animals.",
			Category:     "Animal Welfare",
			GoalAmount:   5000,
			RaisedAmount: 2100,
			ImageURL:     "https://pets24.co.za/wp-content/uploads/2023/11/animal-shelter-adoption.webp",
		},
		{
			ID:           "campaign4",
			Name:         "Medical Aid for Remote Villages",
			Description:  "Deliver essential medical supplies and services to underserved populations.",
			Category:     "Health",
			GoalAmount:   12000,
			RaisedAmount: 9800,
			ImageURL:     "https://media.path.org/images/Zambia_08.18_CommunityEngagement.2e16d0ba.fill-490x333.jpg",
		},
		{
			ID:           "campaign5",
			Name:         "Disaster Relief Fund",
			Description:  "Provide immediate assistance to victims of natural disasters.",
			Category:     "Disaster Relief",
			GoalAmount:   20000,
			RaisedAmount: 1500,
			ImageURL:     "https://bsmedia.business-standard.com/_media/bs/img/article/2023-07/12/full/1689161121-0331.jpg",
		},
	}
}
